package node

// ProcessDriver

func (d *ProcessDriver) MockEndpoint(name, endpoint string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.name = name
	d.endpoint = endpoint
}
