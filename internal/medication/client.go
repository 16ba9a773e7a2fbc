// Package medication 用药提醒
//
// 周期拉取平台用药计划，落盘缓存以便断网与重启后提醒仍然可用；
// 到点判定引擎是纯函数加少量状态，按墙钟时间推进。
package medication

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/aland-omed/ElderGuard/internal/models"
)

// Client 平台用药计划客户端
type Client struct {
	httpClient *resty.Client
	patientID  int
	logger     *zap.Logger
}

// NewClient 创建用药计划客户端
func NewClient(baseURL, token string, patientID int, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &Client{
		httpClient: client,
		patientID:  patientID,
		logger:     logger,
	}
}

// Fetch 拉取当前用药计划
func (c *Client) Fetch() ([]models.MedicationDose, error) {
	var doses []models.MedicationDose
	resp, err := c.httpClient.R().
		SetResult(&doses).
		Get(fmt.Sprintf("/api/patient/%d/medications", c.patientID))

	if err != nil {
		return nil, fmt.Errorf("failed to fetch medication schedule: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("medication API error: status %d", resp.StatusCode())
	}

	c.logger.Info("medication schedule fetched", zap.Int("doses", len(doses)))
	return doses, nil
}
