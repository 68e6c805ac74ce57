// internal/protocol/msgid.go
package protocol

// Version is carried in every frame; frames with any other value are
// rejected with KindBadVersion.
const Version = 1

type MessageType int32

const (
	TypeCall      MessageType = 1
	TypeReply     MessageType = 2
	TypeException MessageType = 3
	TypeOneway    MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case TypeCall:
		return "call"
	case TypeReply:
		return "reply"
	case TypeException:
		return "exception"
	case TypeOneway:
		return "oneway"
	default:
		return "invalid"
	}
}

func (t MessageType) valid() bool {
	return t >= TypeCall && t <= TypeOneway
}
