// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
//   - Pure Go implementation (no CGO)
//   - Matrix and batched matrix multiplication through gonum's BLAS
//   - Batched kernels and row-wise softmax spread across goroutines
//   - NumPy-compatible broadcasting
//
// # Basic Usage
//
//	backend := cpu.New()
//	clf, err := vit.NewClassifier(vit.DefaultConfig(), backend)
//	logits, err := clf.Forward(images)
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Operations never modify their
// inputs and share no mutable state.
package cpu
