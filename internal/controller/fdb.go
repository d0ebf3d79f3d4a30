package controller

import (
	"bytes"
	"sort"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/metrics"
)

func (c *Controller) physicalMask() core.PortMask {
	return core.PortMask(1)<<c.info.Ports - 1
}

// addStatic rejects destination ports the chip does not have. The table
// layer would silently mask them, which turns a mistyped port into a
// different forwarding rule than the one requested.
func (c *Controller) addStatic(e core.FdbEntry) error {
	if e.DestPorts.Physical()&^c.physicalMask() != 0 {
		return core.ErrInvalidPort
	}
	return c.chip.Database().AddStatic(e)
}

// AddStaticEntry installs e, replacing an entry for the same MAC, and
// records it in the store.
func (c *Controller) AddStaticEntry(e core.FdbEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.addStatic(e)
	metrics.ObserveFdb("add_static", err)
	if err != nil {
		return err
	}
	c.authored[e.MAC] = e
	c.persist()
	return nil
}

func (c *Controller) DeleteStaticEntry(mac core.MAC) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.chip.Database().DeleteStatic(mac)
	metrics.ObserveFdb("delete_static", err)
	if err != nil {
		return err
	}
	if _, ok := c.authored[mac]; ok {
		delete(c.authored, mac)
		c.persist()
	}
	return nil
}

func (c *Controller) GetStaticEntry(i int) (core.FdbEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chip.Database().GetStatic(i)
}

func (c *Controller) GetDynamicEntry(i int) (core.FdbEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chip.Database().GetDynamic(i)
}

func (c *Controller) ListStatic() ([]core.FdbEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.chip.Database().ListStatic()
	metrics.ObserveFdb("list_static", err)
	return entries, err
}

// ListDynamic returns at most limit learned entries, all when limit is 0.
func (c *Controller) ListDynamic(limit int) ([]core.FdbEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.chip.Database().ListDynamic(limit)
	metrics.ObserveFdb("list_dynamic", err)
	return entries, err
}

// FlushStatic empties the static table, including reserved multicast
// entries, and the store.
func (c *Controller) FlushStatic() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.chip.Database().FlushStatic()
	metrics.ObserveFdb("flush_static", err)
	if err != nil {
		return err
	}
	c.authored = make(map[core.MAC]core.FdbEntry)
	c.mgmt.ReservedMcast = false
	c.persist()
	return nil
}

// FlushDynamic removes learned entries of port p, or of every port when p
// is zero.
func (c *Controller) FlushDynamic(p core.PortID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p != 0 && !chip.ValidPort(c.info, p) {
		return core.ErrInvalidPort
	}
	err := c.chip.Database().FlushDynamic(p)
	metrics.ObserveFdb("flush_dynamic", err)
	return err
}

func (c *Controller) persist() {
	if c.store == nil {
		return
	}
	entries := make([]core.FdbEntry, 0, len(c.authored))
	for _, e := range c.authored {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].MAC[:], entries[j].MAC[:]) < 0
	})
	if err := c.store.Save(entries); err != nil {
		c.log.WithError(err).Error("persist static fdb")
	}
}
