/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package mcfg reads startup configuration from the environment via
// viper, which is also the hook a future revision can use to add a
// config file without touching the CLI layer.
package mcfg

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the bridge process's startup configuration.
type Config struct {
	Port     int
	Host     string
	LogLevel string
}

// Load reads PORT, HOST, and LOG_LEVEL from the environment, applying
// sensible defaults when unset.
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3000)
	v.SetDefault("host", "")
	v.SetDefault("log_level", "info")

	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("host", "HOST")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	return Config{
		Port:     v.GetInt("port"),
		Host:     v.GetString("host"),
		LogLevel: v.GetString("log_level"),
	}
}
