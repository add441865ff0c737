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

// Package web exposes the admin/observability surface for the demo
// binaries: Prometheus metrics and pprof. It rides on net/http via gin,
// deliberately separate from the hand-rolled HTTP/1.x layer in
// internal/httpproto that the reactor itself serves.
package web

import (
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Init(ginSrv *gin.Engine) {
	pprof.Register(ginSrv)
	ginSrv.GET("/stats", gin.WrapH(promhttp.Handler()))
}
