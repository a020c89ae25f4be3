package contracts

// ReplyError is an application-level error sent by a queryable in place of a sample
type ReplyError struct {
	Payload  []byte
	Encoding string
}

// Error implements error
func (e ReplyError) Error() string {
	return string(e.Payload)
}

// Reply is one answer to a query. Exactly one of Sample and Err is set.
type Reply struct {
	Sample    *Sample
	Err       *ReplyError
	ReplierID ZID
}

// NewSampleReply creates a data reply
func NewSampleReply(replier ZID, sample Sample) Reply {
	return Reply{Sample: &sample, ReplierID: replier}
}

// NewErrorReply creates an error reply
func NewErrorReply(replier ZID, payload []byte, encoding string) Reply {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return Reply{Err: &ReplyError{Payload: payload, Encoding: encoding}, ReplierID: replier}
}

// IsOK reports whether the reply carries a sample
func (r Reply) IsOK() bool {
	return r.Sample != nil
}
