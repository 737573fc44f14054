/*
Package testsupport is an internal package designed to break import cycles
between nsjoin/reexec and nsjoin/reexec/testing: it allows passing
information about coverage profile data files and their locations forth and
back between the two packages when an application using nsjoin/reexec is
under test. And it allows invoking nsjoin/reexec's action dispatching during
re-execution without importing it.
*/
package testsupport
