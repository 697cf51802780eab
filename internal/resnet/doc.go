// Package resnet implements a CIFAR ResNet whose first layer is a bank of
// independently parameterized 3x3 convolutions ("paths").
//
// Every path feeds the same backbone: a shared BatchNorm2D, three residual
// stages of basic blocks (16, 32 and 64 channels), 8x8 global average
// pooling and a linear classifier. A forward pass evaluates all paths, one
// randomly drawn path or one selected path:
//
//	model, err := resnet.ResNet20(10, 10, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := model.Forward(images, resnet.All())      // 10 logits tensors
//	out, err = model.Forward(images, resnet.Selected(3)) // path 3 only
//
// OrthogonalityPenalty returns Σ_{i<j} ⟨W_i, W_j⟩² over the path weights,
// a regularizer an external training loop adds to its loss.
package resnet
