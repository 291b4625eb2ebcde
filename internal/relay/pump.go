package relay

import (
	"errors"
	"io"
)

const copyBufferSize = 32 * 1024

// ErrClientGone 写客户端失败
var ErrClientGone = errors.New("client connection closed")

// Pump 把上游 body 逐块写入转换器直到 EOF
// 不合并数据块，读到多少写多少；出错时在转换器上标记中断
func Pump(src io.Reader, t *Transformer) error {
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := t.Write(buf[:n]); err != nil {
				return errors.Join(ErrClientGone, err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			t.Abort(readErr)
			return readErr
		}
	}
}
