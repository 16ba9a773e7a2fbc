package config

import (
	"os"
	"strconv"
	"time"
)

// Config 设备代理配置
type Config struct {
	Device struct {
		PatientID       int
		DeviceID        string
		FirmwareVersion string
	}

	// 传感器接入方式
	Sensor struct {
		Mode string // "sim"（内置信号模拟器）或 "external"（外部硬件适配器注入）
	}

	MQTT struct {
		Enabled   bool
		Broker    string
		ClientID  string
		Username  string
		Password  string
		BaseTopic string // 如 "elderguard/patient"，完整主题为 <BaseTopic>/<PatientID>/realtime
	}

	// Redis Streams 床旁模式（院内局域网直读，默认关闭）
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Stream   string
		MaxLen   int64
	}

	// 护理平台 REST 接口
	API struct {
		BaseURL          string
		Token            string
		HighRateBPM      int           // 高心率报警阈值
		AlertCooldown    time.Duration // 同类型报警最小间隔
	}

	Medication struct {
		Enabled       bool
		FetchInterval time.Duration
		CheckInterval time.Duration
		CacheFile     string
	}

	Feed struct {
		Enabled bool
		Addr    string // WebSocket 服务监听地址
	}

	// 定位（床旁模式下为配置的固定坐标）
	Location struct {
		Enabled  bool
		Interval time.Duration
		Lat      float64
		Lon      float64
	}

	Audio struct {
		Enabled bool
		Volume  int
	}

	// PostgreSQL 事件归档（机构模式，默认关闭）
	Archive struct {
		Enabled  bool
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Status struct {
		Interval time.Duration
	}

	// 检测参数文件路径（空则使用内置默认值）
	TunablesFile string

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Device.PatientID = parseInt(getEnv("PATIENT_ID", "1"), 1)
	cfg.Device.DeviceID = getEnv("DEVICE_ID", "elderguard-01")
	cfg.Device.FirmwareVersion = getEnv("FIRMWARE_VERSION", "2.1.0")

	cfg.Sensor.Mode = getEnv("SENSOR_MODE", "sim")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "true") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://broker.hivemq.com:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "elderguard-agent")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.BaseTopic = getEnv("MQTT_BASE_TOPIC", "elderguard/patient")

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Redis.Stream = getEnv("REDIS_STREAM", "elderguard:realtime")
	cfg.Redis.MaxLen = int64(parseInt(getEnv("REDIS_STREAM_MAXLEN", "10000"), 10000))

	cfg.API.BaseURL = getEnv("API_BASE_URL", "http://localhost:8000")
	cfg.API.Token = getEnv("API_TOKEN", "")
	cfg.API.HighRateBPM = parseInt(getEnv("API_HIGH_RATE_BPM", "120"), 120)
	cfg.API.AlertCooldown = time.Duration(parseInt(getEnv("API_ALERT_COOLDOWN_S", "60"), 60)) * time.Second

	cfg.Medication.Enabled = getEnv("MEDICATION_ENABLED", "true") == "true"
	cfg.Medication.FetchInterval = time.Duration(parseInt(getEnv("MEDICATION_FETCH_INTERVAL_S", "900"), 900)) * time.Second
	cfg.Medication.CheckInterval = time.Duration(parseInt(getEnv("MEDICATION_CHECK_INTERVAL_S", "5"), 5)) * time.Second
	cfg.Medication.CacheFile = getEnv("MEDICATION_CACHE_FILE", "medications.json")

	cfg.Feed.Enabled = getEnv("FEED_ENABLED", "true") == "true"
	cfg.Feed.Addr = getEnv("FEED_ADDR", ":8090")

	cfg.Location.Enabled = getEnv("LOCATION_ENABLED", "true") == "true"
	cfg.Location.Interval = time.Duration(parseInt(getEnv("LOCATION_INTERVAL_S", "10"), 10)) * time.Second
	cfg.Location.Lat = parseFloat(getEnv("LOCATION_LAT", "0"), 0)
	cfg.Location.Lon = parseFloat(getEnv("LOCATION_LON", "0"), 0)

	cfg.Audio.Enabled = getEnv("AUDIO_ENABLED", "true") == "true"
	cfg.Audio.Volume = parseInt(getEnv("AUDIO_VOLUME", "30"), 30)

	cfg.Archive.Enabled = getEnv("ARCHIVE_ENABLED", "false") == "true"
	cfg.Archive.Host = getEnv("DB_HOST", "localhost")
	cfg.Archive.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Archive.User = getEnv("DB_USER", "postgres")
	cfg.Archive.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Archive.Database = getEnv("DB_NAME", "elderguard")
	cfg.Archive.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Status.Interval = time.Duration(parseInt(getEnv("STATUS_INTERVAL_S", "30"), 30)) * time.Second

	cfg.TunablesFile = getEnv("TUNABLES_FILE", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
