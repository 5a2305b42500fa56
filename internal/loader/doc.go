// Package loader reads trained checkpoints into ordered named tensors.
//
// Two formats are supported:
//   - .born: the native checkpoint written by SaveCheckpoint (see internal/serialization)
//   - .safetensors: what a PyTorch training run exports with safetensors.torch.save_file
//
// PyTorch names follow the nn.Sequential layout of the training script
// (conv1.0.weight, conv1.1.running_var, ...). PyTorchMapper rewrites them to
// the descriptor names used everywhere else (conv1.weight, batchnorm1.running_var).
//
// Example:
//
//	tensors, err := loader.OpenCheckpoint(afero.NewOsFs(), "ckpts/badge9_best.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, nt := range tensors {
//	    fmt.Println(nt.Name, nt.Tensor.Shape())
//	}
//
// All values are converted to float32 on load (F16, BF16 and F64 included).
package loader
