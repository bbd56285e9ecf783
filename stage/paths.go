package stage

import (
	"fmt"
	"path/filepath"
)

// fovDir returns the per-FOV subdirectory, zero-padded to 3 digits
// ("fov_<fff>/").
func fovDir(outputDir string, fov int) string {
	return filepath.Join(outputDir, fmt.Sprintf("fov_%03d", fov))
}

func pcRawPath(outputDir, base string, fov int) string {
	return filepath.Join(fovDir(outputDir, fov), fmt.Sprintf("%s_fov_%03d_pc_raw.pfs", base, fov))
}

func flRawPath(outputDir, base string, fov, ch int) string {
	return filepath.Join(fovDir(outputDir, fov), fmt.Sprintf("%s_fov_%03d_fl_raw_ch_%d.pfs", base, fov, ch))
}

func segPath(outputDir, base string, fov, ch int) string {
	return filepath.Join(fovDir(outputDir, fov), fmt.Sprintf("%s_fov_%03d_seg_ch_%d.pfs", base, fov, ch))
}

func segLabeledPath(outputDir, base string, fov, ch int) string {
	return filepath.Join(fovDir(outputDir, fov), fmt.Sprintf("%s_fov_%03d_seg_labeled_ch_%d.pfs", base, fov, ch))
}

func flCorrectedPath(outputDir, base string, fov, ch int) string {
	return filepath.Join(fovDir(outputDir, fov), fmt.Sprintf("%s_fov_%03d_fl_corrected_ch_%d.pfs", base, fov, ch))
}

func tracesPath(outputDir, base string, fov int) string {
	return filepath.Join(fovDir(outputDir, fov), fmt.Sprintf("%s_fov_%03d_traces.csv", base, fov))
}
