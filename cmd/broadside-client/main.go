// Broadside client — interactive terminal client.
//
// It connects to a Broadside server, identifies with a username, prints
// every server line as it arrives, and sends each stdin line as a game
// command. Lines starting with "/chat " go out as chat messages instead.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/salvora/broadside/internal/protocol"
	"github.com/salvora/broadside/internal/util"
)

var version = "dev"

func main() {
	// CLI flags.
	addr := flag.String("addr", "127.0.0.1:5000", "server address")
	user := flag.String("user", "", "username (prompted when omitted)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Broadside client — v%s", version))
	pterm.Println()

	username := strings.TrimSpace(*user)
	if username == "" {
		username = askUsername()
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		util.LogError("failed to connect to %s: %v", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	c := &client{conn: conn}
	if err := c.send(protocol.TypeData, "USER "+username); err != nil {
		util.LogError("handshake failed: %v", err)
		os.Exit(1)
	}

	go c.receive()
	c.inputLoop()
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

type client struct {
	conn net.Conn
	seq  uint32
}

func (c *client) send(ptype uint8, text string) error {
	c.seq++
	pkt := &protocol.Packet{SeqNum: c.seq, Type: ptype, Payload: []byte(text)}
	return protocol.WritePacket(c.conn, pkt)
}

// receive prints every server frame as it arrives. It owns the process
// lifetime on the read side: a closed or broken connection exits.
func (c *client) receive() {
	br := bufio.NewReader(c.conn)
	for {
		pkt, err := protocol.ReadPacket(br)
		if err != nil {
			pterm.Println()
			util.LogInfo("server closed the connection")
			os.Exit(0)
		}

		switch pkt.Type {
		case protocol.TypeChat:
			pterm.FgCyan.Println(pkt.Text())
		case protocol.TypeError:
			util.LogWarning("%s", pkt.Text())
		default:
			pterm.Println(pkt.Text())
		}
	}
}

// inputLoop forwards stdin lines to the server until EOF.
func (c *client) inputLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ptype := protocol.TypeData
		if rest, ok := strings.CutPrefix(line, "/chat "); ok {
			ptype = protocol.TypeChat
			line = strings.TrimSpace(rest)
			if line == "" {
				continue
			}
		}

		if err := c.send(ptype, line); err != nil {
			util.LogError("disconnected: %v", err)
			os.Exit(1)
		}
	}
}

// askUsername prompts until a non-empty username is entered.
func askUsername() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Enter your username").
			Show()

		name := strings.TrimSpace(raw)
		if name != "" {
			pterm.Println()
			return name
		}

		util.LogWarning("username must not be empty")
		pterm.Println()
	}
}
