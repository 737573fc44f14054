/*
Package reexec forks and then re-executes the current application (process)
in order to run exactly one registered action function in the child, after
the child has switched into a set of already existing Linux kernel
namespaces.

Why the fork/re-execution dance? The Go runtime spins up multiple OS
threads, but Linux really doesn't like a process changing its mount or user
namespace once it has become multi-threaded. A freshly started copy of the
application can join the requested namespaces right at the beginning of its
action dispatching, before the embedding application code gets a chance to
create further concurrency; the namespace references and their join order
travel to the child through nsjoin's environment variables, which this
package composes automatically.

Applications using this package must call CheckAction() as early as possible
in their main() (or TestMain); it dispatches to the registered action when
running as a re-executed child and returns immediately in the parent.
*/
package reexec
