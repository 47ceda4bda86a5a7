package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fpang/filter-studio/internal/auth"
	"github.com/fpang/filter-studio/internal/filtergen"
	"github.com/fpang/filter-studio/internal/ingest"
	"github.com/fpang/filter-studio/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	photoFlag     string
	modelFlag     string
	outFlag       string
	withImageFlag bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "filter-cli [photo]",
	Short: "AI-generated cinematic color filters for photos",
	Long: `Filter CLI sends a photo to Gemini and asks it to compose a cinematic
color-grade, returned as a CSS filter descriptor ready to paste into a
stylesheet or preview in a browser.

Examples:
  filter-cli beach-sunset.jpg
  filter-cli -p ./shots/portrait.png --out preview.html
  filter-cli portrait.png --model gemini-2.5-pro
  filter-cli  # Interactive mode - prompts for the photo path`,
	Args: cobra.MaximumNArgs(1),
	Run:  runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&photoFlag, "photo", "p", "", "Path to the photo to grade")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", filtergen.DefaultModelName, "Gemini model to use (e.g., gemini-2.5-flash, gemini-2.5-pro)")
	rootCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write an HTML preview of the graded photo to this path")
	rootCmd.Flags().BoolVar(&withImageFlag, "with-image", true, "Send the photo with the request so the grade is tailored to it")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	photoPath := photoFlag
	if photoPath == "" && len(args) > 0 {
		photoPath = args[0]
	}
	if photoPath == "" {
		photoPath = promptForPhoto()
	}
	if photoPath == "" {
		log.Fatal().Msg("No photo path provided")
	}

	// Load and validate the photo before touching the network.
	img, err := ingest.LoadFile(photoPath)
	if err != nil {
		var unreadable *ingest.UnreadableFileError
		if errors.As(err, &unreadable) {
			log.Fatal().Str("path", photoPath).Str("reason", unreadable.Reason).Msg("Photo could not be read")
		}
		log.Fatal().Err(err).Str("path", photoPath).Msg("Failed to load photo")
	}

	// Initialize Gemini client
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to retrieve API key")
	}

	ctx := context.Background()
	client, err := filtergen.NewClient(ctx, apiKey, modelFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini client")
	}

	log.Info().Msg("connection successful - Gemini client initialized")

	// Validate API key by making a test API call
	if err := auth.ValidateAPIKey(ctx, client.GenAI(), modelFlag); err != nil {
		handleValidationError(err)
	}

	runFilterGeneration(ctx, client, img, photoPath)
}

// promptForPhoto prompts the user interactively for a photo path.
func promptForPhoto() string {
	fmt.Print("Photo path: ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read input")
		return ""
	}

	return strings.TrimSpace(input)
}

// runFilterGeneration sends the photo to Gemini and prints the resulting
// filter descriptor, optionally writing an HTML preview.
func runFilterGeneration(ctx context.Context, client *filtergen.Client, img *ingest.Image, photoPath string) {
	sizeMB := float64(len(img.Data)) / (1024 * 1024)

	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("🎨 Cinematic Filter Generation")
	fmt.Println("============================================")
	fmt.Printf("Photo: %s\n", filepath.Base(photoPath))
	fmt.Printf("Size: %.2f MB\n", sizeMB)
	fmt.Printf("Type: %s\n", img.MIMEType)
	fmt.Printf("Model: %s\n", modelFlag)
	if img.Meta != nil {
		displayMetadata(img.Meta)
	}
	fmt.Println("--------------------------------------------")
	fmt.Println("⏳ Asking Gemini to compose a color grade...")
	fmt.Println()

	genCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	photo := img
	if !withImageFlag {
		photo = nil
	}

	start := time.Now()
	descriptor, err := client.Generate(genCtx, photo)
	if err != nil {
		var genErr *filtergen.GenerationError
		if errors.As(err, &genErr) {
			log.Fatal().Str("kind", genErr.Kind.String()).Err(err).Msg("filter generation failed")
		}
		log.Fatal().Err(err).Msg("filter generation failed")
	}

	fmt.Println("✅ Filter Ready!")
	fmt.Println("============================================")
	fmt.Println()
	fmt.Printf("filter: %s;\n", descriptor)
	fmt.Println()
	fmt.Printf("(generated in %.1fs)\n", time.Since(start).Seconds())

	if outFlag != "" {
		if err := writePreview(outFlag, img, descriptor); err != nil {
			log.Fatal().Err(err).Str("path", outFlag).Msg("failed to write preview")
		}
		fmt.Printf("Preview written to %s\n", outFlag)
	}
}

// displayMetadata prints the extracted EXIF metadata to the console.
func displayMetadata(m *ingest.Meta) {
	fmt.Println("--------------------------------------------")
	fmt.Println("📍 EXIF Metadata Extracted:")
	if m.CameraMake != "" || m.CameraModel != "" {
		fmt.Printf("   Camera: %s %s\n", m.CameraMake, m.CameraModel)
	}
	if m.HasDate {
		fmt.Printf("   Date: %s\n", m.DateTaken.Format("Monday, January 2, 2006 at 3:04 PM"))
	}
	if m.HasGPS {
		fmt.Println("   GPS: present")
	}
}

// previewTemplate renders the photo with the generated filter applied so the
// grade can be inspected in any browser.
var previewTemplate = template.Must(template.New("preview").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Filter Preview</title></head>
<body style="margin:0;background:#111;display:flex;align-items:center;justify-content:center;min-height:100vh">
<img src="data:{{.MIME}};base64,{{.Data}}" style="max-width:95vw;max-height:95vh;filter:{{.Filter}}" alt="graded photo">
</body>
</html>
`))

func writePreview(path string, img *ingest.Image, descriptor string) error {
	data := img.Preview
	mimeType := img.PreviewMIMEType
	if len(data) == 0 {
		data = img.Data
		mimeType = img.MIMEType
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview file: %w", err)
	}
	defer f.Close()

	return previewTemplate.Execute(f, struct {
		MIME   string
		Data   string
		Filter string
	}{
		MIME:   mimeType,
		Data:   base64.StdEncoding.EncodeToString(data),
		Filter: descriptor,
	})
}

// handleValidationError processes validation errors and exits with appropriate messaging.
func handleValidationError(err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Type {
		case auth.ErrTypeNoKey:
			log.Fatal().Msg("No API key configured. Set GEMINI_API_KEY or store one at ~/.filter-studio/credentials.gpg")
		case auth.ErrTypeInvalidKey:
			log.Fatal().Err(err).Msg("Invalid API key. Please check your API key and try again")
		case auth.ErrTypeNetworkError:
			log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
		case auth.ErrTypeQuotaExceeded:
			log.Fatal().Err(err).Msg("API quota exceeded. Please try again later or check your usage limits")
		default:
			log.Fatal().Err(err).Msg("API key validation failed")
		}
	}
	log.Fatal().Err(err).Msg("unexpected error during API key validation")
}
