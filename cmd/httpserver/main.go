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

// httpserver is a demo binary exercising the S3/S4 scenarios: it answers
// GET /index.html with a 200 and everything else with a 404, and rejects
// malformed request lines with a 400 per spec 4.11.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path"
	"syscall"

	"github.com/gin-gonic/gin"

	"netreactor/config"
	"netreactor/internal/httpproto"
	"netreactor/internal/reactor"
	"netreactor/pkg/logging"
	"netreactor/web"
)

var (
	configPath      = flag.String("p", "conf", "Config file path")
	basicConfigFile = flag.String("c", "httpserver.yaml", "Basic config filename")
	help            = flag.Bool("h", false, "Show usage info")
)

func parseCli() {
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
}

const indexBody = "<html><body>netreactor</body></html>"

func handle(req *httpproto.Request, resp *httpproto.Response) {
	if req.Method() == httpproto.MethodGet && req.Path() == "/index.html" {
		resp.SetStatusCode(httpproto.StatusOK)
		resp.SetStatusMessage("OK")
		resp.SetContentType("text/html")
		resp.SetBody([]byte(indexBody))
		return
	}
	resp.SetStatusCode(httpproto.StatusNotFound)
	resp.SetStatusMessage("Not Found")
	resp.SetCloseConnection(true)
}

func main() {
	parseCli()

	cfg, err := config.LoadConfig(path.Join(*configPath, *basicConfigFile))
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

	logging.Infof("httpserver started with addr: %s, pid: %d", cfg.Addr, syscall.Getpid())

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
	loop.SetName("http-acceptor")

	tcpSrv, err := reactor.NewTCPServer(loop, addr, "http",
		reactor.WithThreadNum(cfg.ThreadNum),
		reactor.WithHighWaterMark(cfg.HighWaterMark),
	)
	if err != nil {
		logging.Errorf("new tcp server: %s", err)
		return
	}

	httpSrv := httpproto.NewServer(tcpSrv)
	httpSrv.SetHandler(handle)

	reactor.Register(cfg.Addr, tcpSrv)

	if err := httpSrv.Start(); err != nil {
		logging.Errorf("start http server: %s", err)
		return
	}

	loop.Loop()
	logging.Infof("httpserver shutdown, pid: %d", syscall.Getpid())
}
