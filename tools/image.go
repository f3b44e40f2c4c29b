package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"sort"

	xdraw "golang.org/x/image/draw"

	"github.com/lexcodex/aicode/framework"
)

// MaxVisionDimension bounds the longest edge of a payload sent to a
// vision-capable model.
const MaxVisionDimension = 768

// colorSampleStep controls how sparsely pixels are sampled for the color
// and complexity metrics.
const colorSampleStep = 8

// AnalyzeImageTool inspects an image file: dimensions, dominant colors, and
// a coarse complexity estimate. Text-only models get the metrics; the shell
// separately attaches the resized payload for vision models.
type AnalyzeImageTool struct {
	Policy *framework.SafetyPolicy
}

func (t *AnalyzeImageTool) Name() string { return "analyze_image" }
func (t *AnalyzeImageTool) Description() string {
	return "Analyzes an image file: dimensions, format, dominant colors, and visual complexity."
}
func (t *AnalyzeImageTool) Danger() framework.DangerLevel { return framework.DangerSafe }
func (t *AnalyzeImageTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Description: "workspace-relative image path", Required: true},
	}
}

func (t *AnalyzeImageTool) Execute(ctx context.Context, args map[string]string) (*framework.ToolResult, error) {
	path, err := t.Policy.ResolvePath(args["path"])
	if err != nil {
		return nil, err
	}
	img, format, err := decodeImageFile(path, args["path"])
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	colors, complexity := sampleColors(img)

	var b bytes.Buffer
	fmt.Fprintf(&b, "image %s (%s)\n", args["path"], format)
	fmt.Fprintf(&b, "  dimensions: %dx%d (aspect %.2f)\n", width, height, aspect(width, height))
	fmt.Fprintf(&b, "  complexity: %s\n", complexity)
	b.WriteString("  dominant colors:")
	for _, c := range colors {
		fmt.Fprintf(&b, " %s", c)
	}

	return &framework.ToolResult{
		Success: true,
		Output:  b.String(),
		Metadata: map[string]interface{}{
			"width":  width,
			"height": height,
			"format": format,
		},
	}, nil
}

// decodeImageFile reads and decodes, folding every decode failure into the
// unreadable-image class.
func decodeImageFile(resolved, display string) (image.Image, string, error) {
	f, err := os.Open(resolved)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", display, err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", framework.NewToolError(framework.FailureUnreadableImage,
			"cannot decode %s: %v", display, err)
	}
	return img, format, nil
}

// VisionPayload loads an image, scales it down to MaxVisionDimension on the
// longest edge, and returns it as base64 PNG for the chat payload.
func VisionPayload(policy *framework.SafetyPolicy, path string) (string, error) {
	resolved, err := policy.ResolvePath(path)
	if err != nil {
		return "", err
	}
	img, _, err := decodeImageFile(resolved, path)
	if err != nil {
		return "", err
	}
	img = scaleDown(img, MaxVisionDimension)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode vision payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func scaleDown(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDim && height <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(width)
	if height > width {
		scale = float64(maxDim) / float64(height)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(width)*scale), int(float64(height)*scale)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// sampleColors buckets a sparse pixel grid into 4-bit-per-channel bins and
// returns the top three as hex, plus a complexity label from how many
// distinct bins showed up.
func sampleColors(img image.Image) ([]string, string) {
	bounds := img.Bounds()
	buckets := make(map[color.RGBA]int)
	samples := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += colorSampleStep {
		for x := bounds.Min.X; x < bounds.Max.X; x += colorSampleStep {
			r, g, b, _ := img.At(x, y).RGBA()
			key := color.RGBA{
				R: uint8(r >> 12 << 4),
				G: uint8(g >> 12 << 4),
				B: uint8(b >> 12 << 4),
			}
			buckets[key]++
			samples++
		}
	}
	if samples == 0 {
		return nil, "empty"
	}

	type bucket struct {
		c color.RGBA
		n int
	}
	ranked := make([]bucket, 0, len(buckets))
	for c, n := range buckets {
		ranked = append(ranked, bucket{c, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return hexColor(ranked[i].c) < hexColor(ranked[j].c)
	})
	top := make([]string, 0, 3)
	for i := 0; i < len(ranked) && i < 3; i++ {
		top = append(top, hexColor(ranked[i].c))
	}

	variety := float64(len(buckets)) / float64(samples)
	complexity := "low"
	switch {
	case variety > 0.25:
		complexity = "high"
	case variety > 0.05:
		complexity = "medium"
	}
	return top, complexity
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func aspect(width, height int) float64 {
	if height == 0 {
		return 0
	}
	return float64(width) / float64(height)
}
