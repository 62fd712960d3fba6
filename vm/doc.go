// Package vm implements the Fusabi virtual machine: the runtime value
// universe, the bytecode instruction set with its builder and reader, the
// stack machine with closures and upvalues, the host-function registry,
// the async task runtime with bounded channels, the .fzb image format and
// the compiled-chunk cache.
package vm
