// Package types defines the value and type model shared by every layer of
// the runtime: tagged runtime values, function signatures, global/table/
// memory types, and the import/export descriptors a module declares.
//
// Descriptors are plain data. They are produced by the module loader in
// declaration order and consumed by import resolution, instantiation and the
// call layer; nothing here touches the execution engine.
package types
