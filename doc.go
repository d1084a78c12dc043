// Package accel provides STL-style parallel algorithms, such as transform,
// reduce, inclusive and exclusive scan, and transform-reduce, that run either
// on the host or on an accelerator device. While Go is primarily designed for
// concurrent programming, the same algorithms can be expressed once and then
// executed serially, on all host cores, or as device kernels, depending on the
// size of the input.
//
// Each algorithm call picks an execution path based on the number of elements
// and two thresholds held by an execution context: small inputs run serially,
// medium inputs run on the host cores, and large inputs are compiled into a
// device kernel on first use and dispatched to the device. Device kernels are
// generated by textual substitution of a fixed algorithm template with the
// source of a user-supplied functor, compiled at most once per combination of
// algorithm, value type, and functor type, and cached for the lifetime of the
// process.
//
// Accel provides the following subpackages:
//
// accel/transform, accel/reduce, accel/scan, and accel/sort provide the
// algorithms. Each
// entry point comes in two forms: one that uses the process-wide default
// execution context, and one that receives an explicit context.Context and an
// explicit execution context.
//
// accel/functional provides functors, which pair a Go function with the device
// source that implements the same operation, as well as the standard functors
// (plus, minus, multiplies, maximum, minimum, negate, square, identity) and
// comparisons (less, greater).
//
// accel/control provides the execution context: the device runtime and queue to
// use, debug flags, auto-tuning modes, dispatch thresholds, logging, and
// metrics.
//
// accel/dispatch provides the dispatch policy that selects the execution path.
//
// accel/kernel provides the kernel templates and the kernel cache and compiler.
//
// accel/device defines the contract of a device runtime. accel/device/emu
// provides an emulated accelerator that runs on the host, and
// accel/device/webgpu provides a WebGPU runtime (build tag webgpu).
//
// accel/parallel and accel/sequential provide the host multi-core and serial
// implementations of the algorithms, and accel/sync provides an efficient
// parallel map, which backs the kernel cache. accel/speculative provides
// parallel predicates that terminate early, used to check sortedness.
package accel
