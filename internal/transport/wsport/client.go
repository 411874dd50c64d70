// Package wsport implements world.Port over a websocket link to a world
// server. The world model supports one outstanding actuation per agent, so
// the client serializes command round-trips.
package wsport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"foreman.ai/internal/protocol"
	"foreman.ai/internal/world"
)

// defaultTimeout bounds a command round-trip when the context carries no
// deadline.
const defaultTimeout = 10 * time.Second

type Client struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	agentID string
	nextID  atomic.Uint64
}

// Dial connects, performs the HELLO/WELCOME handshake, and returns a ready
// client.
func Dial(ctx context.Context, url, agentName string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       agentName,
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: unexpected %q", welcome.Type)
	}

	return &Client{conn: conn, agentID: welcome.AgentID}, nil
}

func (c *Client) AgentID() string { return c.agentID }

func (c *Client) Close() error { return c.conn.Close() }

// roundTrip sends one command and waits for its response. Unmatched
// messages (stray broadcasts) are skipped.
func (c *Client) roundTrip(ctx context.Context, cmd protocol.CmdMsg) (protocol.ResMsg, error) {
	cmd.Type = protocol.TypeCmd
	cmd.ProtocolVersion = protocol.Version
	cmd.ID = fmt.Sprintf("C%d", c.nextID.Add(1))

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return protocol.ResMsg{}, err
	}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return protocol.ResMsg{}, fmt.Errorf("%s: write: %w", cmd.Op, err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return protocol.ResMsg{}, err
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return protocol.ResMsg{}, fmt.Errorf("%s: read: %w", cmd.Op, err)
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil || base.Type != protocol.TypeRes {
			continue
		}
		var res protocol.ResMsg
		if err := json.Unmarshal(raw, &res); err != nil {
			continue
		}
		if res.ID != cmd.ID {
			continue
		}
		if !res.OK {
			return res, fmt.Errorf("%s: %s", cmd.Op, res.Code)
		}
		return res, nil
	}
}

func (c *Client) BlockAt(ctx context.Context, pos world.Vec3i) (string, error) {
	res, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpBlockAt, Pos: pos.ToArray()})
	if err != nil {
		return "", err
	}
	return res.Block, nil
}

func (c *Client) Place(ctx context.Context, blockType string, ref world.Vec3i, face world.Vec3i) error {
	_, err := c.roundTrip(ctx, protocol.CmdMsg{
		Op:        protocol.OpPlace,
		BlockType: blockType,
		Ref:       ref.ToArray(),
		Face:      face.ToArray(),
	})
	return err
}

func (c *Client) Dig(ctx context.Context, pos world.Vec3i) error {
	_, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpDig, Pos: pos.ToArray()})
	return err
}

func (c *Client) MoveTo(ctx context.Context, pos world.Vec3i) error {
	_, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpMoveTo, Pos: pos.ToArray()})
	return err
}

func (c *Client) InventoryItems(ctx context.Context) ([]world.ItemStack, error) {
	res, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpInventory})
	if err != nil {
		return nil, err
	}
	out := make([]world.ItemStack, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, world.ItemStack{Name: it.Name, Count: it.Count})
	}
	return out, nil
}

func (c *Client) NearbyEntities(ctx context.Context, radius int) ([]world.Entity, error) {
	res, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpEntities, Radius: radius})
	if err != nil {
		return nil, err
	}
	out := make([]world.Entity, 0, len(res.Entities))
	for _, e := range res.Entities {
		out = append(out, world.Entity{Kind: e.Kind, Name: e.Name, Pos: world.FromArray(e.Pos)})
	}
	return out, nil
}

func (c *Client) AgentPosition(ctx context.Context) (world.Vec3i, error) {
	res, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpAgentPos})
	if err != nil {
		return world.Vec3i{}, err
	}
	return world.FromArray(res.Pos), nil
}

func (c *Client) AgentVitals(ctx context.Context) (world.Vitals, error) {
	res, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpVitals})
	if err != nil {
		return world.Vitals{}, err
	}
	return world.Vitals{Health: res.Health, Food: res.Food}, nil
}

func (c *Client) Weather(ctx context.Context) (world.Weather, error) {
	res, err := c.roundTrip(ctx, protocol.CmdMsg{Op: protocol.OpWeather})
	if err != nil {
		return world.Weather{}, err
	}
	return world.Weather{Raining: res.Raining, TimeOfDay: res.TimeOfDay}, nil
}
