package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math/big"
	"net"
	"os"
	"strings"
	"time"
)

// Wire constants shared with the server protocol.
const (
	msgMakeOrder         = 1
	msgTake              = 2
	msgImmediateOrCancel = 3
	msgFillOrKill        = 4
	msgCancelOrder       = 5
	msgDepth             = 6

	reportExecution = 0
	reportError     = 1
	reportDepth     = 2

	reportFixedHeaderLen = 52
	depthLevelWireLen    = 33
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner account (compulsory for orders)")
	action := flag.String("action", "make", "Action: ['make', 'take', 'ioc', 'fok', 'cancel', 'depth']")

	// Order Parameters
	aAmt := flag.Uint64("a", 0, "Amount of asset A")
	bAmt := flag.Uint64("b", 0, "Amount of asset B")
	selling := flag.String("selling", "a", "Asset being sold: 'a' or 'b'")
	hint := flag.Uint64("hint", 0, "Position hint: order id, 1 = front, 0 = back")

	// Take Parameters
	amt := flag.Uint64("amt", 0, "Pay-asset amount for take")

	// Cancel / Depth Parameters
	orderID := flag.Uint64("id", 0, "Order id to cancel")
	sideStr := flag.String("side", "ask", "Depth side: 'bid' or 'ask'")
	levels := flag.Uint("levels", 10, "Max depth levels")

	flag.Parse()

	sellingA := strings.ToLower(*selling) == "a"

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	// Execute Action
	var payload []byte
	switch strings.ToLower(*action) {
	case "make":
		requireOwner(*owner)
		payload = frame(msgMakeOrder, func(buf []byte) []byte {
			buf = binary.BigEndian.AppendUint64(buf, *aAmt)
			buf = binary.BigEndian.AppendUint64(buf, *bAmt)
			buf = append(buf, boolByte(sellingA))
			buf = binary.BigEndian.AppendUint64(buf, *hint)
			return appendOwner(buf, *owner)
		})
	case "take":
		requireOwner(*owner)
		payload = frame(msgTake, func(buf []byte) []byte {
			buf = binary.BigEndian.AppendUint64(buf, *amt)
			buf = append(buf, boolByte(sellingA))
			return appendOwner(buf, *owner)
		})
	case "ioc", "fok":
		requireOwner(*owner)
		typeOf := uint16(msgImmediateOrCancel)
		if strings.ToLower(*action) == "fok" {
			typeOf = msgFillOrKill
		}
		payload = frame(typeOf, func(buf []byte) []byte {
			buf = binary.BigEndian.AppendUint64(buf, *aAmt)
			buf = binary.BigEndian.AppendUint64(buf, *bAmt)
			buf = append(buf, boolByte(sellingA))
			return appendOwner(buf, *owner)
		})
	case "cancel":
		requireOwner(*owner)
		payload = frame(msgCancelOrder, func(buf []byte) []byte {
			buf = binary.BigEndian.AppendUint64(buf, *orderID)
			return appendOwner(buf, *owner)
		})
	case "depth":
		payload = frame(msgDepth, func(buf []byte) []byte {
			buf = append(buf, boolByte(strings.ToLower(*sideStr) == "ask"))
			return binary.BigEndian.AppendUint16(buf, uint16(*levels))
		})
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	if _, err := conn.Write(payload); err != nil {
		log.Fatalf("Failed to send request: %v", err)
	}
	fmt.Printf("-> Sent %s request\n", strings.ToUpper(*action))

	// Wait for the answer.
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		log.Fatalf("Failed to arm read deadline: %v", err)
	}
	readReport(conn)
}

func requireOwner(owner string) {
	if owner == "" {
		fmt.Println("Error: -owner is compulsory for this action.")
		flag.Usage()
		os.Exit(1)
	}
}

func frame(typeOf uint16, body func([]byte) []byte) []byte {
	return body(binary.BigEndian.AppendUint16(nil, typeOf))
}

func appendOwner(buf []byte, owner string) []byte {
	buf = append(buf, uint8(len(owner)))
	return append(buf, owner...)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// readReport parses and prints a single server answer.
func readReport(conn net.Conn) {
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		if err != io.EOF {
			log.Fatalf("Read error: %v", err)
		}
		return
	}
	buf = buf[:n]

	switch buf[0] {
	case reportExecution, reportError:
		if len(buf) < reportFixedHeaderLen {
			log.Fatalf("Short report (%d bytes)", len(buf))
		}
		orderID := binary.BigEndian.Uint64(buf[2:10])
		aUsed := binary.BigEndian.Uint64(buf[10:18])
		bUsed := binary.BigEndian.Uint64(buf[18:26])
		remaining := binary.BigEndian.Uint64(buf[26:34])
		errLen := binary.BigEndian.Uint16(buf[34:36])
		if buf[0] == reportError {
			fmt.Printf("<- ERROR: %s\n", buf[reportFixedHeaderLen:reportFixedHeaderLen+int(errLen)])
			return
		}
		fmt.Printf("<- OK op=%d order=%d aUsed=%d bUsed=%d remaining=%d\n",
			buf[1], orderID, aUsed, bUsed, remaining)
	case reportDepth:
		count := binary.BigEndian.Uint16(buf[17:19])
		fmt.Printf("<- DEPTH %d levels\n", count)
		off := 19
		for i := 0; i < int(count); i++ {
			bigger := "B"
			if buf[off] == 0 {
				bigger = "A"
			}
			ratio := new(big.Int).SetBytes(buf[off+1 : off+17])
			selling := binary.BigEndian.Uint64(buf[off+17 : off+25])
			buying := binary.BigEndian.Uint64(buf[off+25 : off+33])
			fmt.Printf("   %2d. ratio=%s bigger=%s selling=%d buying=%d\n",
				i+1, ratio, bigger, selling, buying)
			off += depthLevelWireLen
		}
	default:
		log.Fatalf("Unknown report type %d", buf[0])
	}
}
