/*
Package nsjoin switches your process into other, already existing Linux
kernel namespaces. The switching has to happen as early as possible:
changing into a different mount or user namespace is refused by the kernel
as soon as a process has spun up multiple OS threads, so call
[JoinNamespaces] before starting any concurrency, ideally as the very first
statement of your main().

	package main

	import "github.com/nsjoin/nsjoin"

	func main() {
	    if err := nsjoin.JoinNamespaces(); err != nil {
	        panic(err)
	    }
	    // ...
	}

# Telling Your Program Which Namespaces to Enter

The existing namespaces to join are referenced by their paths in the
filesystem (such as "/proc/123456/ns/mnt"), and are specified using
environment variables. Set only the environment variables for those
namespaces that should be switched; these variables need to be set before
your application is started. The names of the environment variables are as
follows and must be all lowercase:

	nsjoin_cgroup=...
	nsjoin_ipc=...
	nsjoin_mnt=...
	nsjoin_net=...
	nsjoin_pid=... # see note below
	nsjoin_user=...
	nsjoin_uts=...

# Controlling the Sequence in Which to Enter Namespaces

Additionally, you can specify the order in which the namespaces should be
switched, as well as when the namespace paths are to be opened: if not
overridden by the optional environment variable nsjoin_order=..., then the
default order is "!user,!mnt,!cgroup,!ipc,!net,!pid,!uts" (see below for the
meaning of "!"). It's not necessary to specify all 7 namespace types when
you don't intend to switch them all. For instance, if you just switch the
net and IPC namespaces, then "nsjoin_order=net,ipc" is sufficient.

When a namespace type name is preceded by a bang "!", such as "!user", then
its path will be opened before the first namespace switch takes place.
Without a bang, the namespace path is opened just right before switching
into this namespace. This is mostly of importance when switching the mount
namespace, as this can also change the filesystem and thus how the namespace
paths are resolved.

# Reexec to the Rescue

In case your Go application wants to fork and then restart itself in order
to be able to switch namespaces, you might find the subpackage
[github.com/nsjoin/nsjoin/reexec] useful. It simplifies the overall process
and takes care of correctly setting the environment variables.

# Technical Notes

Setting "nsjoin_pid=..." does not switch your application's own PID
namespace, but rather controls the PID namespace any child processes of your
application will be put into.

If a given namespace path is invalid, or if there are insufficient rights to
access the path or to switch to the specified namespace, then JoinNamespaces
aborts the remaining switches and returns an error describing the failure;
the same description remains available through [Status] afterwards. Nothing
gets rolled back: several of the namespace switches are irreversible, so the
caller decides whether to abort, degrade, or continue outside the intended
namespaces.
*/
package nsjoin
