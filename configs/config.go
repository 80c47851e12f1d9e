// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package configs

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config 存储所有应用程序的配置

type Config struct {
	Server ServerConfig `mapstructure:"server"`

	BackendURL string `mapstructure:"backend_url"`

	Backend BackendConfig `mapstructure:"backend"`

	Hosts HostsConfig `mapstructure:"hosts"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig 存储日志相关的配置

type LogConfig struct {
	LogLevel string `mapstructure:"level"`

	OutputPaths []string `mapstructure:"output_paths"`
}

// ServerConfig 存储服务器相关的配置

type ServerConfig struct {
	Port string `mapstructure:"port"`

	// HealthPort 是只提供 /healthz 的独立端口，为空时不启动。
	// 站点端口上的所有路径都交给网关处理。
	HealthPort string `mapstructure:"health_port"`

	TLSCertPath string `mapstructure:"tls_cert_path"`

	TLSKeyPath string `mapstructure:"tls_key_path"`
}

// BackendConfig 存储源站转发相关的配置

type BackendConfig struct {
	// PreserveHost 为 true 时把客户端请求的 Host 原样转发给源站，
	// 使同一源站可以按主机名区分正式站点与预览站点。
	PreserveHost bool `mapstructure:"preserve_host"`
}

// RedisConfig 存储 Redis 连接相关的配置

type RedisConfig struct {
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`

	DB int `mapstructure:"db"`

	Key string `mapstructure:"key"`
}

// HostsConfig 存储主机策略表

type HostsConfig struct {
	Source string `mapstructure:"source"` // "static" or "redis"

	CanonicalURL string `mapstructure:"canonical_url"`

	Redirect []string `mapstructure:"redirect"`

	Embeddable []string `mapstructure:"embeddable"`

	CSP []string `mapstructure:"csp"`

	Redis RedisConfig `mapstructure:"redis"`
}

// LoadConfig 从文件和环境变量中读取配置

func LoadConfig() (config Config, err error) {

	// 设置默认值

	viper.SetDefault("server.port", "8080")

	viper.SetDefault("server.health_port", "8081")

	viper.SetDefault("backend_url", "http://localhost:3000")

	viper.SetDefault("backend.preserve_host", true)

	viper.SetDefault("log.level", "info")

	viper.SetDefault("log.output_paths", []string{"stdout"}) // 默认输出到标准输出

	// 主机策略默认配置

	viper.SetDefault("hosts.source", "static")

	viper.SetDefault("hosts.canonical_url", "https://gordonbeeming.com/")

	viper.SetDefault("hosts.redirect", []string{"redirect.gordonbeeming.com", "www.gordonbeeming.com"})

	viper.SetDefault("hosts.embeddable", []string{"iframe.gordonbeeming.com"})

	viper.SetDefault("hosts.csp", []string{"gordonbeeming.com", "preview.gordonbeeming.com"})

	viper.SetDefault("hosts.redis.addr", "localhost:6379")

	viper.SetDefault("hosts.redis.password", "")

	viper.SetDefault("hosts.redis.db", 0)

	viper.SetDefault("hosts.redis.key", "edgeguard:hosts")

	// 从配置文件加载

	viper.SetConfigName("config") // 配置文件名 (不带扩展名)

	viper.SetConfigType("yaml") // 配置文件类型

	viper.AddConfigPath("./configs") // 配置文件路径

	viper.AddConfigPath(".") // 可选的当前目录路径

	// 读取配置文件

	err = viper.ReadInConfig()

	if err != nil {

		if _, ok := err.(viper.ConfigFileNotFoundError); ok {

			// 配置文件未找到是可接受的，因为可以使用环境变量

			log.Printf("DEBUG: 配置文件未找到，将使用默认值和环境变量：%v", err)

		} else {

			// 配置文件被找到但解析错误

			log.Printf("ERROR: 读取配置文件失败，文件存在但解析错误：%v", err)

			return config, err

		}

	} else {

		log.Printf("DEBUG: 成功加载配置文件：%s", viper.ConfigFileUsed())

	}

	// 启用环境变量绑定

	viper.SetEnvPrefix("EDGEGUARD")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.AutomaticEnv()

	// 将配置解组到结构体

	err = viper.Unmarshal(&config)

	return

}
