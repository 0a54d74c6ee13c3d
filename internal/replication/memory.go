package replication

// Uplink returns an in-process uplink that submits straight to the authority.
func (n *AuthorityNode) Uplink() Uplink {
	return UplinkFunc(func(req Request) error {
		n.Submit(req)
		return nil
	})
}

// Duplicating delivers every envelope twice. It models an at-least-once
// transport.
func Duplicating(sub Subscriber) Subscriber {
	return SubscriberFunc(func(env Envelope) {
		sub.Deliver(env)
		sub.Deliver(env)
	})
}

// DuplicatingUplink sends every request twice.
func DuplicatingUplink(up Uplink) Uplink {
	return UplinkFunc(func(req Request) error {
		if err := up.SendRequest(req); err != nil {
			return err
		}
		return up.SendRequest(req)
	})
}
