// Package serialization saves and loads model checkpoints in the SafeTensors
// layout.
//
//	Format Structure:
//	  [8 bytes: header size (uint64 LE)]
//	  [header: JSON object, tensor name → {dtype, shape, data_offsets}]
//	  [tensor data: raw little-endian bytes, tensors in name order]
//
// The "__metadata__" entry of the header carries string metadata. Every
// checkpoint written by this package records:
//
//	format         "captionvit"
//	model          model kind ("caption" or "vit")
//	checkpoint_id  random UUID identifying this file
//	created_at     RFC 3339 timestamp
//	sha256         hex SHA-256 of the tensor data section
//
// Readers verify the checksum and reject overlapping or out-of-bounds
// tensor regions before any tensor is materialized.
//
// Example usage:
//
//	id, err := serialization.Save("decoder.safetensors", "caption", decoder.StateDict(), nil)
//
//	ckpt, err := serialization.Load("decoder.safetensors")
//	err = decoder.LoadStateDict(ckpt.Tensors)
package serialization
