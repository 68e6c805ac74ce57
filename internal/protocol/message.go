package protocol

// Message is one decoded frame: a call coming in, or a reply/exception
// going out.
type Message struct {
	Version int
	Type    MessageType
	SeqID   int64
	Method  string
	Args    []any
	Kwargs  Kwargs
	Result  any
	Fault   *Fault
}

func NewCall(seqID int64, method string, args []any, kwargs Kwargs) *Message {
	return &Message{
		Version: Version,
		Type:    TypeCall,
		SeqID:   seqID,
		Method:  method,
		Args:    args,
		Kwargs:  kwargs,
	}
}

func NewReply(call *Message, result any) *Message {
	return &Message{
		Version: Version,
		Type:    TypeReply,
		SeqID:   call.SeqID,
		Method:  call.Method,
		Result:  result,
	}
}

func NewException(call *Message, fault *Fault) *Message {
	return &Message{
		Version: Version,
		Type:    TypeException,
		SeqID:   call.SeqID,
		Method:  call.Method,
		Fault:   fault,
	}
}

// Kwarg is a single keyword argument.
type Kwarg struct {
	Name  string
	Value any
}

// Kwargs keeps keyword arguments in the order the caller sent them.
type Kwargs []Kwarg

func (k Kwargs) Get(name string) (any, bool) {
	for _, kw := range k {
		if kw.Name == name {
			return kw.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing name or appends a new one.
func (k *Kwargs) Set(name string, value any) {
	for i := range *k {
		if (*k)[i].Name == name {
			(*k)[i].Value = value
			return
		}
	}
	*k = append(*k, Kwarg{Name: name, Value: value})
}

func (k Kwargs) Names() []string {
	names := make([]string, len(k))
	for i, kw := range k {
		names[i] = kw.Name
	}
	return names
}

func (k Kwargs) Map() map[string]any {
	m := make(map[string]any, len(k))
	for _, kw := range k {
		m[kw.Name] = kw.Value
	}
	return m
}

// Meta carries caller identity sent alongside calls (client_name,
// client_version, ...).
type Meta map[string]string
