// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2024 The netreactor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the YAML configuration consumed by the cmd/ demo
// binaries. The reactor packages themselves take no dependency on it.
package config

import (
	"io/ioutil"
	"path"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"netreactor/pkg/logging"
)

type Config struct {
	Addr            string `yaml:"addr"`
	WebAddr         string `yaml:"web_addr"`
	ThreadNum       int    `yaml:"thread_num"`
	ReusePort       bool   `yaml:"reuse_port"`
	TCPKeepAlive    int    `yaml:"tcp_keepalive_sec"`
	HighWaterMark   int    `yaml:"high_water_mark_bytes"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	LogPath         string `yaml:"log_path"`
	LogLevel        string `yaml:"log_level"`
	LogExpireDay    int    `yaml:"log_expire_day"`
}

// hot holds the subset of Config that is safe to mutate while the server is
// running. Everything else (listen address, thread count, reuse_port) only
// takes effect at process start, mirroring the teacher's authip.go split
// between one-shot bind-time options and live-reloadable ones.
type hot struct {
	logLevel      atomic.Value
	highWaterMark int64
}

func newHot(c *Config) *hot {
	h := &hot{}
	h.logLevel.Store(c.LogLevel)
	atomic.StoreInt64(&h.highWaterMark, int64(c.HighWaterMark))
	return h
}

func (h *hot) LogLevel() string {
	return h.logLevel.Load().(string)
}

func (h *hot) HighWaterMark() int64 {
	return atomic.LoadInt64(&h.highWaterMark)
}

// Watcher loads a Config from disk and keeps its hot-reloadable fields
// current by watching the file with fsnotify, the same pattern the teacher
// uses in core/authip/authip.go for its IP allow-list.
type Watcher struct {
	dir  string
	name string
	full string
	hot  *hot
}

func LoadConfig(fileName string) (*Config, error) {
	file, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file from %s", fileName)
	}
	cfg := defaultConfig()
	if err = yaml.Unmarshal(file, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", fileName)
	}
	if err = cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config validate failed")
	}
	return cfg, nil
}

// WatchConfig loads fileName and starts a goroutine that re-parses it on
// every write/rename event, updating the returned Watcher's hot fields in
// place. Fields outside the hot set (Addr, ThreadNum, ReusePort) are frozen
// at the value they held when WatchConfig was called.
func WatchConfig(fileName string) (*Config, *Watcher, error) {
	cfg, err := LoadConfig(fileName)
	if err != nil {
		return nil, nil, err
	}
	w := &Watcher{
		dir:  path.Dir(fileName),
		name: path.Base(fileName),
		full: fileName,
		hot:  newHot(cfg),
	}
	if err := w.watch(); err != nil {
		return nil, nil, err
	}
	return cfg, w, nil
}

func (w *Watcher) LogLevel() string      { return w.hot.LogLevel() }
func (w *Watcher) HighWaterMark() int64  { return w.hot.HighWaterMark() }

func (w *Watcher) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(w.dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", w.dir)
	}
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if path.Base(ev.Name) != w.name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := LoadConfig(w.full)
				if err != nil {
					logging.Errorf("config: reload %s failed: %s", w.full, err)
					continue
				}
				w.hot.logLevel.Store(cfg.LogLevel)
				atomic.StoreInt64(&w.hot.highWaterMark, int64(cfg.HighWaterMark))
				logging.Infof("config: reloaded %s", w.full)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Errorf("config: watcher error: %s", err)
			}
		}
	}()
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Addr:           "tcp://:9527",
		WebAddr:        ":9528",
		ThreadNum:      4,
		ReusePort:      false,
		TCPKeepAlive:   15,
		HighWaterMark:  64 << 20,
		IdleTimeoutSec: 0,
		LogPath:        "log",
		LogLevel:       logging.LevelInfo,
		LogExpireDay:   7,
	}
}

func (c *Config) validate() error {
	if _, ok := logging.LevelMapperRev[c.LogLevel]; !ok {
		return errors.Errorf("unknown log level %s", c.LogLevel)
	}
	if len(c.Addr) < 1 {
		return errors.Errorf("empty listen addr")
	}
	if c.ThreadNum < 1 {
		return errors.Errorf("thread_num must be >= 1")
	}
	if c.HighWaterMark < 0 {
		return errors.Errorf("high_water_mark_bytes must be >= 0")
	}
	return nil
}
