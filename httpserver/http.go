/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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
 */

package httpserver

import (
	"net/http"
	"sync"

	liberr "github.com/nabbar/reactor/errors"
)

// Pool runs a fixed number of workers, each owning an independent Server
// bound to the same listen address, matching WorkerCount of ServerConfig.
// Each worker is its own net/http Server and accepts connections
// independently; nothing is shared between workers except the handler.
type Pool struct {
	workers []Server
}

// NewPool creates WorkerCount servers (minimum 1) from cfg, one per worker,
// validates each clone and starts it listening on handler. It returns as soon
// as every worker has been launched; per-worker Listen errors are collected
// and returned together rather than aborting the remaining workers.
func NewPool(cfg ServerConfig, handler http.Handler) (*Pool, liberr.Error) {
	n := cfg.WorkerCount
	if n < 1 {
		n = 1
	}

	p := &Pool{workers: make([]Server, 0, n)}
	add := ErrorPoolAdd.Error(nil)

	for i := 0; i < n; i++ {
		clone := cfg.Clone()

		if e := clone.Validate(); e != nil {
			add.Add(e)
			continue
		}

		p.workers = append(p.workers, NewServer(&clone))
	}

	if add.HasParent() {
		return p, add
	}

	listen := ErrorPoolListen.Error(nil)

	for _, s := range p.workers {
		if e := s.Listen(handler); e != nil {
			listen.Add(e)
		}
	}

	if listen.HasParent() {
		return p, listen
	}

	return p, nil
}

func (p *Pool) WaitNotify() {
	var wg sync.WaitGroup
	wg.Add(len(p.workers))

	for _, s := range p.workers {
		go func(serv Server) {
			defer wg.Done()
			serv.WaitNotify()
		}(s)
	}

	wg.Wait()
}

func (p *Pool) Restart() {
	for _, s := range p.workers {
		s.Restart()
	}
}

func (p *Pool) Shutdown() {
	for _, s := range p.workers {
		s.Shutdown()
	}
}

func (p *Pool) IsRunning() bool {
	for _, s := range p.workers {
		if s.IsRunning() {
			return true
		}
	}

	return false
}

func (p *Pool) OpenConnections() int64 {
	var n int64
	for _, s := range p.workers {
		n += s.OpenConnections()
	}
	return n
}
