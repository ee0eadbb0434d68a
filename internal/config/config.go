package config

import (
	"encoding/json"
	"errors"
	"os"
)

// Config is the broker/client process configuration, read once from
// config.json at startup.
type Config struct {
	Database struct {
		Host               string `json:"host"`
		Port               uint64 `json:"port"`
		Username           string `json:"username"`
		Password           string `json:"password"`
		Database           string `json:"database"`
		UseTLS             bool   `json:"use_tls"`
		ConnectTimeout     string `json:"connect_timeout"`
		SocketTimeout      string `json:"socket_timeout"`
		ConnectIdleTimeout string `json:"connect_idle_timeout"`
		OperationTimeout   string `json:"operation_timeout"`
		Heartbeat          string `json:"heartbeat"`
		MinPoolSize        uint64 `json:"min_pool_size"`
		MaxPoolSize        uint64 `json:"max_pool_size"`
	} `json:"database"`
	CAN struct {
		Interface string `json:"interface"`
	} `json:"can"`
	Ping struct {
		AutoPingEnabled bool   `json:"auto_ping_enabled"`
		Interval        string `json:"interval"`
		MaxMissed       int    `json:"max_missed_pings"`
	} `json:"ping"`
	Client struct {
		Serial          string   `json:"serial"`
		ConnectTimeout  string   `json:"connect_timeout"`
		SubscribeTopics []string `json:"subscribe_topics"`
	} `json:"client"`
	DebugMode bool   `json:"debug_mode"`
	AppName   string `json:"app_name"`
	AppPort   int    `json:"app_port"`
}

// defaultConfig mirrors the values a fresh install writes to config.json.
func defaultConfig() Config {
	var c Config
	c.CAN.Interface = "can0"
	c.Ping.Interval = "5s"
	c.Ping.MaxMissed = 2
	c.Database.OperationTimeout = "5s"
	c.Database.ConnectTimeout = "10s"
	c.Database.SocketTimeout = "10s"
	c.Database.ConnectIdleTimeout = "5m"
	c.Database.Heartbeat = "10s"
	c.Database.MinPoolSize = 1
	c.Database.MaxPoolSize = 10
	c.Client.ConnectTimeout = "5s"
	c.AppName = "canpubsub-broker"
	return c
}

var config Config
var initialized = false

func ReadConfig() (Config, error) {
	bytes, err := os.ReadFile("config.json")

	if err != nil {
		config = defaultConfig()
		writer, _ := os.OpenFile("config.json", os.O_WRONLY|os.O_CREATE, 0777)
		data, _ := json.MarshalIndent(config, "", "\t")
		_, _ = writer.Write(data)
		_ = writer.Close()
		return config, errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
	}

	err = json.Unmarshal(bytes, &config)

	if err != nil {
		return config, errors.New("the configuration file does not contain valid JSON")
	}

	initialized = true
	return config, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}
