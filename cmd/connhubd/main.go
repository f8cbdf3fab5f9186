// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

//go:build unix

package main

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/dialcore/connhub/internal/config"
	"github.com/dialcore/connhub/internal/message"
	"github.com/dialcore/connhub/internal/server"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func checkError(err error) {
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "connhubd"
	myApp.Usage = "concurrent TCP connection hub with a JSON framing protocol"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":7000",
			Usage: `listen address, eg: "0.0.0.0:7000" for a single port, "0.0.0.0:7000-7009" for a port range`,
		},
		cli.IntFlag{
			Name:  "keepalive-interval",
			Value: 10,
			Usage: "expected client heartbeat period, in seconds",
		},
		cli.IntFlag{
			Name:  "keepalive-check-period",
			Value: 3,
			Usage: "liveness scanner runs every keepalive-interval * this multiplier",
		},
		cli.IntFlag{
			Name:  "keepalive-prod",
			Value: 30,
			Usage: "heartbeat age, in seconds, beyond which a connection is reported as timed out",
		},
		cli.StringFlag{
			Name:  "metrics-log",
			Usage: "path to a periodic CSV metrics snapshot file; unset disables metrics",
		},
		cli.IntFlag{
			Name:  "metrics-period",
			Value: 60,
			Usage: "metrics snapshot period, in seconds",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "redirect log output to this file instead of stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress the startup configuration dump",
		},
		cli.StringFlag{
			Name:  "c",
			Usage: "path to a JSON config file overriding every flag above",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		cfg := config.Default()
		cfg.Listen = c.String("listen")
		cfg.KeepAliveInterval = c.Int("keepalive-interval")
		cfg.KeepAliveCheckPeriod = c.Int("keepalive-check-period")
		cfg.KeepAliveProd = c.Int("keepalive-prod")
		cfg.MetricsLog = c.String("metrics-log")
		cfg.MetricsPeriod = c.Int("metrics-period")
		cfg.LogFile = c.String("log")
		cfg.Quiet = c.Bool("quiet")

		if err := config.Load(&cfg, c.String("c")); err != nil {
			checkError(err)
		}
		cfg.Validate()

		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		if !cfg.Quiet {
			log.Println("version:", VERSION)
			log.Println("listening on:", cfg.Listen)
			log.Println("keepalive interval:", cfg.KeepAliveInterval, "check period:", cfg.KeepAliveCheckPeriod, "prod:", cfg.KeepAliveProd)
			log.Println("metrics log:", cfg.MetricsLog, "period:", cfg.MetricsPeriod)
		}

		srv := server.New(cfg, message.JSONDecoder{})
		if err := srv.Start(); err != nil {
			checkError(err)
		}

		waitForShutdown(srv)
		return nil
	}
	myApp.Run(os.Args)
}
