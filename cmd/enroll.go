package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/andresmejia3/watchlist/internal/utils"
	"github.com/spf13/cobra"
)

// galleryPrefix is the leading token of enrolled file names.
const galleryPrefix = "user"

var enrollGallery string

var enrollCmd = &cobra.Command{
	Use:   "enroll <image_path> <record_id>",
	Short: "Add a face image to the gallery under a criminal record id",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[1])
		if err != nil || id < 0 {
			utils.Die("Invalid record ID", fmt.Errorf("must be a non-negative integer, got %q", args[1]), nil)
		}
		if err := runEnroll(cmd.Context(), args[0], id); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollGallery, "gallery", "g", "images", "Directory of labelled face images")
	flagAppliers[enrollCmd] = func(cmd *cobra.Command) {
		if cmd.Flags().Changed("gallery") {
			cfg.Gallery = enrollGallery
		}
	}
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, imagePath string, id int) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	eng, proc, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start face engine", err, proc)
		return err
	}
	defer eng.Close()

	faces, err := eng.Detect(ctx, types.Frame{Data: imgData})
	if err != nil {
		utils.ShowError("Face detection failed", err, proc)
		return err
	}
	if len(faces) != 1 {
		err := fmt.Errorf("expected exactly one face, found %d", len(faces))
		utils.ShowError("Image is not usable for the gallery", err, nil)
		return err
	}

	if err := os.MkdirAll(cfg.Gallery, 0755); err != nil {
		utils.ShowError("Failed to create gallery directory", err, nil)
		return err
	}
	dst, err := nextGalleryName(cfg.Gallery, id, filepath.Ext(imagePath))
	if err != nil {
		utils.ShowError("Failed to pick a gallery file name", err, nil)
		return err
	}
	if err := copyFile(imagePath, dst); err != nil {
		utils.ShowError("Failed to copy image into the gallery", err, nil)
		return err
	}

	fmt.Printf("✅ Enrolled %s as record %d (%s)\n", filepath.Base(imagePath), id, dst)
	return nil
}

// nextGalleryName returns the first free name of the form user.<id><ext>,
// user.<id>.1<ext>, user.<id>.2<ext>, ...
func nextGalleryName(dir string, id int, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = ".jpg"
	}
	for n := 0; n < 10000; n++ {
		name := fmt.Sprintf("%s.%d%s", galleryPrefix, id, ext)
		if n > 0 {
			name = fmt.Sprintf("%s.%d.%d%s", galleryPrefix, id, n, ext)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("too many images for record %d", id)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
