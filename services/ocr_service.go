package services

import (
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"credit-underwriting-api/utils"
)

// ExtractedIdentity holds the fields recognized from a scanned ID card.
type ExtractedIdentity struct {
	Name          *string `json:"name"`
	AadhaarNumber *string `json:"aadhaar_number"`
}

// ExtractedFinancials holds the fields recognized from a salary slip.
type ExtractedFinancials struct {
	Salary *float64 `json:"salary"`
	PAN    *string  `json:"pan"`
}

var (
	aadhaarRegex   = regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\b`)
	panRegex       = regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`)
	moneyRegex     = regexp.MustCompile(`[\d,]+\.?\d*`)
	nonNameRegex   = regexp.MustCompile(`[^A-Za-z\s.]`)
	salaryKeywords = []string{"net pay", "net salary", "gross salary", "total earnings", "net amount", "take home"}
)

// Salary figures outside this band are treated as OCR noise (page numbers,
// account numbers, yearly totals). Both bounds are exclusive: exactly 5000 or
// 500000 is rejected, matching the band the model was validated against.
const (
	minPlausibleSalary = 5000
	maxPlausibleSalary = 500000
)

// ExtractTextFromImage runs text recognition over an image file after cleaning
// it up. All failures degrade to an empty string; a bad scan must not abort the
// surrounding workflow.
func ExtractTextFromImage(imagePath string) string {
	if _, err := os.Stat(imagePath); err != nil {
		return ""
	}

	inputPath := imagePath
	if processed, err := preprocessImage(imagePath); err == nil {
		defer os.Remove(processed)
		inputPath = processed
	} else {
		log.Printf("Image pre-processing failed for %s, falling back to raw image: %v", imagePath, err)
	}

	text, err := runTesseract(inputPath)
	if err != nil {
		log.Printf("OCR failed for %s: %v", imagePath, err)
		return ""
	}
	return text
}

// Runs: tesseract <input> stdout
func runTesseract(inputPath string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	bin := os.Getenv("TESSERACT_CMD")
	if bin == "" {
		bin = "tesseract"
	}

	out, err := exec.CommandContext(ctx, bin, inputPath, "stdout").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// preprocessImage converts to grayscale, binarizes with an Otsu-selected global
// threshold and applies a 3x3 median filter, writing the result to a temp PNG.
func preprocessImage(imagePath string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", err
	}

	gray := toGrayscale(src)
	binary := binarize(gray, otsuThreshold(gray))
	denoised := medianFilter(binary)

	tmp, err := os.CreateTemp("", "ocr-preprocessed-*.png")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if err := png.Encode(tmp, denoised); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func toGrayscale(src image.Image) *image.Gray {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return gray
}

// otsuThreshold picks the global threshold maximizing between-class variance.
func otsuThreshold(gray *image.Gray) uint8 {
	var hist [256]int
	total := 0
	bounds := gray.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return 128
	}

	sum := 0.0
	for i, count := range hist {
		sum += float64(i) * float64(count)
	}

	var (
		sumBackground float64
		wBackground   int
		bestVariance  float64
		threshold     uint8
	)
	for t := 0; t < 256; t++ {
		wBackground += hist[t]
		if wBackground == 0 {
			continue
		}
		wForeground := total - wBackground
		if wForeground == 0 {
			break
		}
		sumBackground += float64(t) * float64(hist[t])

		meanB := sumBackground / float64(wBackground)
		meanF := (sum - sumBackground) / float64(wForeground)
		variance := float64(wBackground) * float64(wForeground) * (meanB - meanF) * (meanB - meanF)
		if variance > bestVariance {
			bestVariance = variance
			threshold = uint8(t)
		}
	}
	return threshold
}

func binarize(gray *image.Gray, threshold uint8) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// medianFilter applies a 3x3 median to knock out salt-and-pepper noise.
func medianFilter(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	window := make([]uint8, 0, 9)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
						continue
					}
					window = append(window, gray.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}

// ParseAadhaarDocument finds the Aadhaar number and the holder name in
// recognized ID-card text. The name is taken from the line immediately
// preceding the date-of-birth line; single-token results are treated as noise.
func ParseAadhaarDocument(text string) ExtractedIdentity {
	var identity ExtractedIdentity

	if m := aadhaarRegex.FindString(text); m != "" {
		number := strings.ReplaceAll(m, " ", "")
		identity.AadhaarNumber = &number
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "date of birth") && !strings.Contains(lower, "dob") {
			continue
		}
		if i == 0 {
			continue
		}
		candidate := strings.TrimSpace(nonNameRegex.ReplaceAllString(lines[i-1], ""))
		if len(strings.Fields(candidate)) > 1 {
			identity.Name = &candidate
			break
		}
	}
	return identity
}

// ParseFinancialDocument scans salary-slip text for the net salary and PAN.
// Payslips repeat the headline figure next to several labels; the largest
// plausible number across all keyword-hit lines wins.
func ParseFinancialDocument(text string) ExtractedFinancials {
	var financials ExtractedFinancials

	if m := panRegex.FindString(text); m != "" {
		pan := m
		financials.PAN = &pan
	}

	maxFound := 0.0
	for _, line := range strings.Split(strings.ToLower(text), "\n") {
		hit := false
		for _, keyword := range salaryKeywords {
			if strings.Contains(line, keyword) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		for _, raw := range moneyRegex.FindAllString(line, -1) {
			figure, ok := utils.ParseAmount(raw)
			if !ok {
				continue
			}
			if figure > minPlausibleSalary && figure < maxPlausibleSalary && figure > maxFound {
				maxFound = figure
			}
		}
	}
	if maxFound > 0 {
		financials.Salary = &maxFound
	}
	return financials
}
