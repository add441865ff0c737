// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2024 The netreactor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License"): you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

// echoserver is a demo binary exercising the S1/S2 scenarios: it echoes
// every message back to the sender and, if IdleTimeoutSec is configured,
// force-closes each connection that many seconds after it is established,
// whether or not it has been active.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"netreactor/config"
	"netreactor/internal/reactor"
	"netreactor/pkg/logging"
	"netreactor/web"
)

var (
	configPath      = flag.String("p", "conf", "Config file path")
	basicConfigFile = flag.String("c", "echoserver.yaml", "Basic config filename")
	help            = flag.Bool("h", false, "Show usage info")
)

func parseCli() {
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
}

func main() {
	parseCli()

	cfg, watcher, err := config.WatchConfig(path.Join(*configPath, *basicConfigFile))
	if err != nil {
		fmt.Printf("parse config file err: %v\n", err)
		return
	}

	if err = logging.InitializeLogger(
		logging.WithPath(cfg.LogPath),
		logging.WithExpireDay(cfg.LogExpireDay),
		logging.WithLogLevel(cfg.LogLevel),
	); err != nil {
		fmt.Printf("failed to initialize logger, err: %s\n", err)
		return
	}

	logging.Infof("echoserver started with addr: %s, pid: %d", cfg.Addr, syscall.Getpid())

	if cfg.WebAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		ginSrv := gin.New()
		web.Init(ginSrv)
		httpSrv := &http.Server{Handler: ginSrv, Addr: cfg.WebAddr}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil {
				logging.Errorf("web server stopped: %s", err)
			}
		}()
	}

	addr, err := reactor.ResolveAddr(cfg.Addr)
	if err != nil {
		logging.Errorf("resolve addr %s: %s", cfg.Addr, err)
		return
	}

	loop, err := reactor.NewEventLoop()
	if err != nil {
		logging.Errorf("new event loop: %s", err)
		return
	}
	loop.SetName("echo-acceptor")

	srv, err := reactor.NewTCPServer(loop, addr, "echo",
		reactor.WithThreadNum(cfg.ThreadNum),
		reactor.WithReusePort(reusePortMode(cfg.ReusePort)),
		reactor.WithHighWaterMark(int(watcher.HighWaterMark())),
	)
	if err != nil {
		logging.Errorf("new tcp server: %s", err)
		return
	}

	srv.ConnectionCallback = func(conn *reactor.TCPConnection) {
		if conn.Connected() && cfg.IdleTimeoutSec > 0 {
			conn.ForceCloseWithDelay(time.Duration(cfg.IdleTimeoutSec) * time.Second)
		}
	}
	srv.MessageCallback = func(conn *reactor.TCPConnection, buf *reactor.Buffer, _ time.Time) {
		conn.Send(buf.RetrieveAllBytes())
	}

	reactor.Register(cfg.Addr, srv)

	if err := srv.Start(); err != nil {
		logging.Errorf("start tcp server: %s", err)
		return
	}

	loop.Loop()
	logging.Infof("echoserver shutdown, pid: %d", syscall.Getpid())
}

func reusePortMode(on bool) reactor.ReusePortMode {
	if on {
		return reactor.ReusePort
	}
	return reactor.NoReusePort
}
