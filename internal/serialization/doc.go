// Package serialization implements the native .born checkpoint format.
//
// A .born v2 file is laid out as:
//
//	Format Structure:
//	  [0x00: Magic "BORN"]
//	  [0x04: Version (uint32 LE) = 2]
//	  [0x08: Flags (uint32 LE)]
//	  [0x0C: Reserved]
//	  [0x10: Header Size (uint64 LE)]
//	  [0x18: Data Size (uint64 LE)]
//	  [0x20: SHA-256 of the data section (32 bytes)]
//	  [0x40: Header: JSON metadata]
//	  [Tensor data: little-endian float32, 64-byte aligned]
//
// Tensors are written in the order the caller supplies them, so a checkpoint
// preserves the network's declaration order and two saves of the same
// parameters produce the same data section.
//
// The package also writes SafeTensors files, which the loader package reads
// back; tests and `badgecnn init` use it to produce PyTorch-compatible
// checkpoints.
//
// Example usage:
//
//	// Save
//	err := serialization.WriteFile(fs, "badge.born", nn.StateDict(net, true), serialization.Header{ModelType: "BadgeCNN"})
//
//	// Load
//	reader, err := serialization.NewBornReader(fs, "badge.born")
//	tensors, err := reader.ReadTensors()
//	reader.Close()
package serialization
