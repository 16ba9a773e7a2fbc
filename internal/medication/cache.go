package medication

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aland-omed/ElderGuard/internal/models"
)

// SaveCache 把计划写入本地缓存文件
// 先写临时文件再改名，进程中途被杀不会留下半截缓存
func SaveCache(path string, doses []models.MedicationDose) error {
	data, err := json.MarshalIndent(doses, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal medication cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write medication cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace medication cache: %w", err)
	}
	return nil
}

// LoadCache 读取本地缓存的计划
// 文件不存在返回空计划，不算错误
func LoadCache(path string) ([]models.MedicationDose, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read medication cache: %w", err)
	}

	var doses []models.MedicationDose
	if err := json.Unmarshal(data, &doses); err != nil {
		return nil, fmt.Errorf("parse medication cache: %w", err)
	}
	return doses, nil
}
