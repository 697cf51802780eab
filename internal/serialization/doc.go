// Package serialization reads and writes model state dictionaries in the
// SafeTensors format:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON object, tensor name -> {dtype, shape, data_offsets}]
//	[tensor data: raw little-endian bytes, tensors in name order]
//
// An optional "__metadata__" entry in the header carries string key/value
// pairs. The writer records a SHA-256 checksum of the data section under
// the "checksum" metadata key; the reader verifies it when present.
//
// Example usage:
//
//	// Save
//	err := serialization.WriteFile("model.safetensors", model.StateDict(), map[string]string{"depth": "20"})
//
//	// Load
//	stateDict, metadata, err := serialization.ReadFile("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = model.LoadStateDict(stateDict)
package serialization
