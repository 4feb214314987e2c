// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
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

package natssink

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/objcoord/objcoord/locks"
)

const (
	fieldType   protowire.Number = 1
	fieldLock   protowire.Number = 2
	fieldClient protowire.Number = 3
	fieldThread protowire.Number = 4
	fieldLevel  protowire.Number = 5
)

// errTruncated is returned when a payload ends in the middle of a field
var errTruncated = errors.New("truncated lock response")

// Marshal encodes a lock response in the protobuf wire format
func Marshal(response *locks.Response) []byte {
	b := make([]byte, 0, 16+len(response.Lock)+len(response.Client))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(response.Type))
	b = protowire.AppendTag(b, fieldLock, protowire.BytesType)
	b = protowire.AppendString(b, string(response.Lock))
	b = protowire.AppendTag(b, fieldClient, protowire.BytesType)
	b = protowire.AppendString(b, string(response.Client))
	b = protowire.AppendTag(b, fieldThread, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(response.Thread)))
	b = protowire.AppendTag(b, fieldLevel, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(response.Level))
	return b
}

// Unmarshal decodes a lock response. Unknown fields are skipped.
func Unmarshal(b []byte) (*locks.Response, error) {
	response := new(locks.Response)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errTruncated, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldLock && typ == protowire.BytesType,
			num == fieldClient && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errTruncated, protowire.ParseError(n))
			}
			if num == fieldLock {
				response.Lock = locks.ID(v)
			} else {
				response.Client = locks.ClientID(v)
			}
			b = b[n:]
		case typ == protowire.VarintType && (num == fieldType || num == fieldThread || num == fieldLevel):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errTruncated, protowire.ParseError(n))
			}
			switch num {
			case fieldType:
				response.Type = locks.ResponseType(v)
			case fieldThread:
				response.Thread = locks.ThreadID(protowire.DecodeZigZag(v))
			case fieldLevel:
				response.Level = locks.Level(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errTruncated, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return response, nil
}
