package binarize

// Binary morphology over a flat row-major H*W boolean image: plain
// nested-loop kernels operating directly on slices, no third-party
// raster library (see SPEC_FULL.md §1C for why none of the corpus's
// dependencies cover raster morphology).

func idx(y, x, w int) int { return y*w + x }

// dilateSquare sets out[y,x] = true if any pixel within a k x k square
// centered on (y,x) is true in in. Out-of-bounds neighbors are treated
// as false (background).
func dilateSquare(in []bool, h, w, k int) []bool {
	r := k / 2
	out := make([]bool, len(in))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hit := false
			for dy := -r; dy <= r && !hit; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -r; dx <= r; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					if in[idx(ny, nx, w)] {
						hit = true
						break
					}
				}
			}
			out[idx(y, x, w)] = hit
		}
	}
	return out
}

// erodeSquare sets out[y,x] = true only if every pixel within a k x k
// square centered on (y,x) is true in in. When borderForeground is
// true, out-of-bounds neighbors are treated as foreground (true),
// matching scipy's border_value=1; otherwise they are treated as
// background (false).
func erodeSquare(in []bool, h, w, k int, borderForeground bool) []bool {
	r := k / 2
	out := make([]bool, len(in))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			all := true
			for dy := -r; dy <= r && all; dy++ {
				ny := y + dy
				for dx := -r; dx <= r; dx++ {
					nx := x + dx
					var v bool
					if ny < 0 || ny >= h || nx < 0 || nx >= w {
						v = borderForeground
					} else {
						v = in[idx(ny, nx, w)]
					}
					if !v {
						all = false
						break
					}
				}
			}
			out[idx(y, x, w)] = all
		}
	}
	return out
}

// fillHoles fills every background region that does not touch the
// image border: it flood-fills background starting from the border
// (4-connectivity, matching the connected-component labeler's
// connectivity) and then flips every background pixel that flood
// fill never reached.
func fillHoles(in []bool, h, w int) []bool {
	reached := make([]bool, len(in))
	stack := make([]int, 0, h+w)

	push := func(y, x int) {
		if y < 0 || y >= h || x < 0 || x >= w {
			return
		}
		p := idx(y, x, w)
		if in[p] || reached[p] {
			return
		}
		reached[p] = true
		stack = append(stack, p)
	}

	for x := 0; x < w; x++ {
		push(0, x)
		push(h-1, x)
	}
	for y := 0; y < h; y++ {
		push(y, 0)
		push(y, w-1)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		y, x := p/w, p%w
		push(y-1, x)
		push(y+1, x)
		push(y, x-1)
		push(y, x+1)
	}

	out := make([]bool, len(in))
	for i, v := range in {
		out[i] = v || !reached[i]
	}
	return out
}

// andImages returns the elementwise AND of a and b.
func andImages(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}

// openIterations applies n erosions followed by n dilations with the
// given square kernel size, matching scipy.ndimage.binary_opening's
// iterations semantics (as used by the source's morphology pass,
// the reference binarization pipeline).
func openIterations(in []bool, h, w, k, n int) []bool {
	img := in
	for i := 0; i < n; i++ {
		img = erodeSquare(img, h, w, k, false)
	}
	for i := 0; i < n; i++ {
		img = dilateSquare(img, h, w, k)
	}
	return img
}

// postProcessMask applies the full post-processing pipeline: dilate 3x3,
// fill holes, AND with a twice-iterated 5x5 opening of the result,
// then erode 3x3 treating the border as foreground. The "AND with its
// own opening" step follows original_source's
// `img_bin &= binary_opening(img_bin, iterations=2, structure=STRUCT5)`
// rather than replacing img_bin outright with the opened image.
func postProcessMask(candidate []bool, h, w int) []bool {
	img := dilateSquare(candidate, h, w, 3)
	img = fillHoles(img, h, w)
	opened := openIterations(img, h, w, 5, 2)
	img = andImages(img, opened)
	img = erodeSquare(img, h, w, 3, true)
	return img
}
