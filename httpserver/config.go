/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	libtls "github.com/nabbar/reactor/certificates"
	liberr "github.com/nabbar/reactor/errors"
)

// LoadViper unmarshals a pool of server configurations from key in v (a
// slice of server blocks, e.g. "servers" in a YAML/JSON/env-backed config),
// the same mapstructure tags each ServerConfig field already carries.
func LoadViper(v *viper.Viper, key string) (PoolServerConfig, liberr.Error) {
	var pool PoolServerConfig

	if err := v.UnmarshalKey(key, &pool); err != nil {
		return nil, ErrorPoolValidate.ErrorParent(err)
	}

	return pool, nil
}

type MapUpdPoolServerConfig func(cfg ServerConfig) ServerConfig
type MapRunPoolServerConfig func(cfg ServerConfig)
type PoolServerConfig []ServerConfig

func (p PoolServerConfig) Validate() liberr.Error {
	var e = ErrorPoolValidate.Error(nil)

	p.MapRun(func(cfg ServerConfig) {
		var err liberr.Error

		if err = cfg.Validate(); err != nil {
			e.AddParentError(err)
		}
	})

	if !e.HasParent() {
		e = nil
	}

	return e
}

func (p PoolServerConfig) MapUpdate(f MapUpdPoolServerConfig) PoolServerConfig {
	var r = make(PoolServerConfig, 0)

	if p != nil {
		r = p
	}

	for i, c := range r {
		r[i] = f(c)
	}

	return r
}

func (p PoolServerConfig) MapRun(f MapRunPoolServerConfig) PoolServerConfig {
	var r = make(PoolServerConfig, 0)

	if p != nil {
		r = p
	}

	for _, c := range r {
		f(c)
	}

	return r
}

type ServerConfig struct {
	getTLSDefault    func() libtls.TLSConfig
	getParentContext func() context.Context

	// Disabled allow to disable a server without clean his configuration
	Disabled bool

	// Mandatory is carried in the configuration; nothing in this package
	// reads it, and Clone does not copy it.
	Mandatory bool

	// TimeoutCacheInfo is carried in the configuration; nothing in this
	// package reads it, and Clone does not copy it.
	TimeoutCacheInfo time.Duration

	// TimeoutCacheHealth is carried in the configuration; nothing in this
	// package reads it, and Clone does not copy it.
	TimeoutCacheHealth time.Duration

	// WorkerCount is the number of independent acceptor workers NewPool runs
	// for this server, each its own net/http Server with its own listening
	// socket. A value below 1 is treated as 1.
	WorkerCount int `mapstructure:"worker_count" json:"worker_count" yaml:"worker_count" toml:"worker_count"`

	// MaxConnections caps the number of simultaneously open connections a
	// single worker will accept; 0 means unlimited.
	MaxConnections int64 `mapstructure:"max_connections" json:"max_connections" yaml:"max_connections" toml:"max_connections"`

	// AcceptBacklog is carried in the configuration and copied by Clone;
	// Listen does not apply it, and the listening socket uses the system
	// default backlog.
	AcceptBacklog int `mapstructure:"accept_backlog" json:"accept_backlog" yaml:"accept_backlog" toml:"accept_backlog"`

	/*** http options ***/

	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	//
	// Because ReadTimeout does not let Handlers make per-request
	// decisions on each request body's acceptable deadline or
	// upload rate, most users will prefer to use
	// ReadHeaderTimeout. It is valid to use them both.
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`

	// ReadHeaderTimeout is the amount of time allowed to read
	// request headers. The connection's read deadline is reset
	// after reading the headers and the Handler can decide what
	// is considered too slow for the body. If ReadHeaderTimeout
	// is zero, Listen uses 30 seconds.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" json:"read_header_timeout" yaml:"read_header_timeout" toml:"read_header_timeout"`

	// WriteTimeout is the maximum duration before timing out
	// writes of the response. It is reset whenever a new
	// request's header is read. Like ReadTimeout, it does not
	// let Handlers make decisions on a per-request basis.
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the
	// server will read parsing the request header's keys and
	// values, including the request line. It does not limit the
	// size of the request body.
	// If zero, DefaultMaxHeaderBytes is used.
	MaxHeaderBytes int `mapstructure:"max_header_bytes" json:"max_header_bytes" yaml:"max_header_bytes" toml:"max_header_bytes"`

	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled. If IdleTimeout
	// is zero, the value of ReadTimeout is used. If both are
	// zero, there is no timeout.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`

	// DisableKeepAlive controls whether HTTP keep-alives are
	// disabled. By default, keep-alives are always enabled.
	DisableKeepAlive bool `mapstructure:"disable_keep_alive" json:"disable_keep_alive" yaml:"disable_keep_alive" toml:"disable_keep_alive"`

	// Name is the name of the current server
	// the configuration allow multipke server, which each one must be identify by a name
	// If not defined, will use the listen address
	Name string `mapstructure:"name" json:"name" yaml:"name" toml:"name" validate:"required"`

	// Listen is the local address (ip, hostname, unix socket, ...) with a port
	// The server will bind with this address only and listen for the port defined
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required,hostname_port"`

	// Expose is the address use to call this server. This can be allow to use a single fqdn to multiple server"
	Expose string `mapstructure:"expose" json:"expose" yaml:"expose" toml:"expose" validate:"required,url"`

	// HandlerKeys is a free-form key returned by GetHandlerKey (Clone lower-cases it).
	// Listen does not use it: the handler is the one passed to Listen.
	HandlerKeys string

	// TLSMandatory is carried in the configuration and copied by Clone.
	// Listen does not check it: without a certificate pair the server starts in plain HTTP.
	TLSMandatory bool

	// TLS is the tls configuration for this server.
	// GetTLS merges it over the default TLS config set with SetDefaultTLS (if any), whatever InheritDefault says;
	// the server uses TLS when the result holds at least one certificate pair.
	// If you don't want any tls config, just omit or set an empty struct.
	TLS libtls.Config `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
}

func (c *ServerConfig) Clone() ServerConfig {
	return ServerConfig{
		Disabled:          c.Disabled,
		getTLSDefault:     c.getTLSDefault,
		getParentContext:  c.getParentContext,
		WorkerCount:       c.WorkerCount,
		MaxConnections:    c.MaxConnections,
		AcceptBacklog:     c.AcceptBacklog,
		ReadTimeout:       c.ReadTimeout,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
		WriteTimeout:      c.WriteTimeout,
		MaxHeaderBytes:    c.MaxHeaderBytes,
		IdleTimeout:       c.IdleTimeout,
		DisableKeepAlive:  c.DisableKeepAlive,
		Name:              c.Name,
		Listen:            c.Listen,
		Expose:            c.Expose,
		HandlerKeys:       strings.ToLower(c.HandlerKeys),
		TLSMandatory:      c.TLSMandatory,
		TLS:               c.TLS,
	}
}

func (c *ServerConfig) SetDefaultTLS(f func() libtls.TLSConfig) {
	c.getTLSDefault = f
}

func (c *ServerConfig) SetParentContext(f func() context.Context) {
	c.getParentContext = f
}

func (c ServerConfig) GetTLS() (libtls.TLSConfig, liberr.Error) {
	var def libtls.TLSConfig

	if c.getTLSDefault != nil {
		def = c.getTLSDefault()
	}

	return c.TLS.NewFrom(def)
}

func (c ServerConfig) IsTLS() bool {
	if ssl, err := c.GetTLS(); err == nil && ssl != nil && ssl.LenCertificatePair() > 0 {
		return true
	}

	return false
}

func (c ServerConfig) getContext() context.Context {
	var ctx context.Context

	if c.getParentContext != nil {
		ctx = c.getParentContext()
	}

	if ctx == nil {
		return context.Background()
	}

	return ctx
}

func (c ServerConfig) GetListen() *url.URL {
	var (
		err error
		add *url.URL
	)

	if c.Listen != "" {
		if add, err = url.Parse(c.Listen); err != nil {
			if host, prt, err := net.SplitHostPort(c.Listen); err == nil {
				add = &url.URL{
					Host: fmt.Sprintf("%s:%s", host, prt),
				}
			} else {
				add = nil
			}
		}
	}

	if add == nil && c.Expose != "" {
		if add, err = url.Parse(c.Expose); err != nil {
			add = nil
		}
	}

	return add
}

func (c ServerConfig) GetExpose() *url.URL {
	var (
		err error
		add *url.URL
	)

	if c.Expose != "" {
		if add, err = url.Parse(c.Expose); err != nil {
			add = nil
		}
	}

	if add == nil {
		if add = c.GetListen(); add != nil {
			if c.IsTLS() {
				add.Scheme = "https"
			} else {
				add.Scheme = "http"
			}
		}
	}

	return add
}

func (c ServerConfig) GetHandlerKey() string {
	return c.HandlerKeys
}

func (c ServerConfig) Validate() liberr.Error {
	val := validator.New()
	err := val.Struct(c)

	if e, ok := err.(*validator.InvalidValidationError); ok {
		return ErrorServerValidate.ErrorParent(e)
	} else if err == nil {
		return nil
	}

	out := ErrorServerValidate.Error(nil)

	for _, e := range err.(validator.ValidationErrors) {
		//nolint goerr113
		out.AddParent(fmt.Errorf("config field '%s' is not validated by constraint '%s'", e.Field(), e.ActualTag()))
	}

	if out.HasParent() {
		return out
	}

	return nil

}

func (c ServerConfig) Server() Server {
	return NewServer(&c)
}
