package domain

// Имена лент очереди. Зафиксированы: их читают и внешние консьюмеры.
const (
	LaneThumbnails = "thumbnails"
	LaneWelcomes   = "welcomes"
)

// ThumbnailWidths — обязательные размеры миниатюр
var ThumbnailWidths = []int{500, 250, 100}

// ThumbnailJob — полезная нагрузка задания ленты thumbnails
type ThumbnailJob struct {
	FileID string `json:"fileId"`
	UserID string `json:"userId"`
}

// WelcomeJob — полезная нагрузка задания ленты welcomes
type WelcomeJob struct {
	UserID string `json:"userId"`
}
