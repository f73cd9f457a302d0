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

package reactor

import "github.com/nabbar/reactor/errors"

const (
	ErrorEpollCreate errors.CodeError = iota + errors.MinPkgReactor
	ErrorEpollRegister
	ErrorEpollModify
	ErrorEpollRemove
	ErrorEpollWait
	ErrorEventfdCreate
	ErrorTimerfdCreate
	ErrorTurnReentrant
	ErrorShutdownInTurn
	ErrorSourceDestroyEnabled
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorEpollCreate)
	errors.RegisterIdFctMessage(ErrorEpollCreate, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorEpollCreate:
		return "cannot create epoll instance"
	case ErrorEpollRegister:
		return "cannot register file descriptor with epoll"
	case ErrorEpollModify:
		return "cannot modify file descriptor registration with epoll"
	case ErrorEpollRemove:
		return "cannot remove file descriptor registration from epoll"
	case ErrorEpollWait:
		return "epoll wait failed"
	case ErrorEventfdCreate:
		return "cannot create eventfd wakeup descriptor"
	case ErrorTimerfdCreate:
		return "cannot create timerfd descriptor"
	case ErrorTurnReentrant:
		return "reactor turn is already in progress on this notifier"
	case ErrorShutdownInTurn:
		return "cannot shut down notifier while a turn is in progress"
	case ErrorSourceDestroyEnabled:
		return "event source destroyed while still enabled"
	}

	return ""
}
