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

//go:build linux

package tcp

import "github.com/nabbar/reactor/errors"

const (
	ErrorSocketCreate errors.CodeError = iota + errors.MinPkgSocketTcp
	ErrorSocketBind
	ErrorSocketConnect
	ErrorSocketIO
	ErrorCandidatesExhausted
	ErrorDnsResolve
	ErrorNotConnected
	ErrorRegisterSource
	ErrorListenAddress
	ErrorListenSocket
	ErrorListenBind
	ErrorListenListen
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorSocketCreate)
	errors.RegisterIdFctMessage(ErrorSocketCreate, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorSocketCreate:
		return "cannot create non-blocking stream socket"
	case ErrorSocketBind:
		return "cannot bind socket to requested local address"
	case ErrorSocketConnect:
		return "cannot issue connect on socket"
	case ErrorSocketIO:
		return "i/o error on connected socket"
	case ErrorCandidatesExhausted:
		return "all connect candidates were exhausted without success"
	case ErrorDnsResolve:
		return "cannot resolve peer hostname"
	case ErrorNotConnected:
		return "socket is not connected"
	case ErrorRegisterSource:
		return "cannot register socket event source with notifier"
	case ErrorListenAddress:
		return "listen address is not an ip literal"
	case ErrorListenSocket:
		return "cannot create listening socket"
	case ErrorListenBind:
		return "cannot bind listening socket"
	case ErrorListenListen:
		return "cannot mark socket as listening"
	}

	return ""
}
