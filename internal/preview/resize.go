package preview

import (
	"fmt"

	"github.com/h2non/bimg"
)

const jpegQuality = 85 // качество JPEG

// Resizer уменьшает изображение до заданной ширины
type Resizer interface {
	Resize(data []byte, width int) ([]byte, error)
}

// BimgResizer реализует Resizer через libvips
type BimgResizer struct{}

func NewBimgResizer() *BimgResizer {
	return &BimgResizer{}
}

// Resize масштабирует изображение до заданной ширины с сохранением пропорций
func (r *BimgResizer) Resize(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid width: %d", width)
	}

	image := bimg.NewImage(data)

	// Получаем текущие размеры
	size, err := image.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to get image size: %w", err)
	}
	if size.Width == 0 {
		return nil, fmt.Errorf("invalid image dimensions")
	}

	height := (size.Height * width) / size.Width

	processed, err := image.Process(bimg.Options{
		Width:   width,
		Height:  height,
		Quality: jpegQuality,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	return processed, nil
}
