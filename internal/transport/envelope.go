package transport

import (
	"encoding/binary"
	"io"

	"dispatch-server/internal/protocol"
)

const DefaultMaxFrameSize = 16 * 1024 * 1024

func readFrame(reader io.Reader, maxSize int) (*protocol.Message, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(reader, sizeBuf[:]); err != nil {
		return nil, wrapError(err)
	}

	size := int32(binary.BigEndian.Uint32(sizeBuf[:]))
	if size < 0 {
		return nil, protocol.NewError(protocol.KindNegativeSize, "frame size %d", size)
	}
	if maxSize > 0 && int(size) > maxSize {
		return nil, protocol.NewError(protocol.KindSizeLimit, "frame size %d exceeds %d", size, maxSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, wrapError(err)
	}
	return protocol.Unmarshal(data)
}

func writeFrame(writer io.Writer, msg *protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}

	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(data)))

	if _, err := writer.Write(sizeBuf[:]); err != nil {
		return wrapError(err)
	}
	if _, err := writer.Write(data); err != nil {
		return wrapError(err)
	}
	return nil
}
