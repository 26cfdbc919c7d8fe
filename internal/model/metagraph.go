package model

// Neuron is one registered slot on the subnet as reported by the chain bridge
type Neuron struct {
	UID    int     `json:"uid"`
	Hotkey string  `json:"hotkey"`
	IP     string  `json:"ip"`
	Port   int     `json:"port"`
	Stake  float64 `json:"stake"`
}

// Reachable reports whether the neuron advertises a usable network address
func (n Neuron) Reachable() bool {
	return n.IP != "" && n.IP != "0.0.0.0" && n.Port > 0
}

// Metagraph is a snapshot of the subnet state
type Metagraph struct {
	NetUID  int      `json:"netuid"`
	Block   uint64   `json:"block"`
	Neurons []Neuron `json:"neurons"`
}

// Size returns the number of uid slots
func (m *Metagraph) Size() int {
	if m == nil {
		return 0
	}
	return len(m.Neurons)
}

// ReachableUIDs returns the uids of neurons with a network address, in uid order
func (m *Metagraph) ReachableUIDs() []int {
	if m == nil {
		return nil
	}
	uids := make([]int, 0, len(m.Neurons))
	for _, n := range m.Neurons {
		if n.Reachable() {
			uids = append(uids, n.UID)
		}
	}
	return uids
}

// UIDForHotkey returns the uid registered to hotkey
func (m *Metagraph) UIDForHotkey(hotkey string) (int, bool) {
	if m == nil {
		return 0, false
	}
	for _, n := range m.Neurons {
		if n.Hotkey == hotkey {
			return n.UID, true
		}
	}
	return 0, false
}

// Neuron returns the neuron at uid
func (m *Metagraph) Neuron(uid int) (Neuron, bool) {
	if m == nil || uid < 0 || uid >= len(m.Neurons) {
		return Neuron{}, false
	}
	return m.Neurons[uid], true
}
