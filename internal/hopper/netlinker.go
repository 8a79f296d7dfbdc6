package hopper

import (
	"fmt"
	"sync"

	"github.com/vishvananda/netlink"
)

// Netlinker is the subset of vishvananda/netlink the Hopper needs to
// manage an 802.1Q sub-interface's lifecycle. Routing table and rule
// mutation stay on the argv-form Command Executor; only link
// create/up/down/delete go through here.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkSetDown(link netlink.Link) error
	LinkDel(link netlink.Link) error
}

// RealNetlinker is a thin pass-through to the netlink package.
type RealNetlinker struct{}

func (RealNetlinker) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (RealNetlinker) LinkAdd(link netlink.Link) error              { return netlink.LinkAdd(link) }
func (RealNetlinker) LinkSetUp(link netlink.Link) error            { return netlink.LinkSetUp(link) }
func (RealNetlinker) LinkSetDown(link netlink.Link) error          { return netlink.LinkSetDown(link) }
func (RealNetlinker) LinkDel(link netlink.Link) error              { return netlink.LinkDel(link) }

// DryRunNetlinker logs link operations instead of touching the kernel,
// and hands back a synthetic parent Device so VLAN construction has a
// ParentIndex to attach to.
type DryRunNetlinker struct {
	mu  sync.Mutex
	Ops []string
}

func NewDryRunNetlinker() *DryRunNetlinker {
	return &DryRunNetlinker{}
}

func (n *DryRunNetlinker) log(op string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Ops = append(n.Ops, op)
}

func (n *DryRunNetlinker) LinkByName(name string) (netlink.Link, error) {
	return &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name, Index: 1}}, nil
}

func (n *DryRunNetlinker) LinkAdd(link netlink.Link) error {
	n.log(fmt.Sprintf("link add %s type %s", link.Attrs().Name, link.Type()))
	return nil
}

func (n *DryRunNetlinker) LinkSetUp(link netlink.Link) error {
	n.log(fmt.Sprintf("link set %s up", link.Attrs().Name))
	return nil
}

func (n *DryRunNetlinker) LinkSetDown(link netlink.Link) error {
	n.log(fmt.Sprintf("link set %s down", link.Attrs().Name))
	return nil
}

func (n *DryRunNetlinker) LinkDel(link netlink.Link) error {
	n.log(fmt.Sprintf("link del %s", link.Attrs().Name))
	return nil
}
