package dnsrecord

import (
	"context"
	"log/slog"
	"net"
	"net/netip"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPort is the UDP responder's default bind port (spec §4.7; port 53
// requires elevated privileges, so 5353 is the default).
const DefaultPort = 5353

// Responder is the optional read-only UDP DNS responder (spec §4.7). It
// resolves (name, type) against DNSRecord rows across all environments —
// name uniqueness across environments is not guaranteed, so it returns the
// oldest matching record (spec §9 Open Question decision).
type Responder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewResponder creates a DNS UDP Responder.
func NewResponder(pool *pgxpool.Pool, logger *slog.Logger) *Responder {
	return &Responder{pool: pool, logger: logger}
}

// Run binds a UDP socket on port and serves queries until ctx is cancelled.
func (r *Responder) Run(ctx context.Context, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("dns responder read failed", "error", err)
			continue
		}
		query := make([]byte, n)
		copy(query, buf[:n])
		go r.handle(ctx, conn, addr, query)
	}
}

func (r *Responder) handle(ctx context.Context, conn *net.UDPConn, addr netip.AddrPort, query []byte) {
	var parser dnsmessage.Parser
	header, err := parser.Start(query)
	if err != nil {
		return
	}

	question, err := parser.Question()
	if err != nil {
		r.reply(conn, addr, header, nil, dnsmessage.RCodeFormatError)
		return
	}

	recordType, ok := toRecordType(question.Type)
	if !ok {
		r.reply(conn, addr, header, &question, dnsmessage.RCodeNotImplemented)
		return
	}

	store := NewStore(r.pool)
	row, found, err := store.Resolve(ctx, question.Name.String(), recordType)
	if err != nil {
		r.logger.Error("resolving dns query failed", "error", err)
		r.reply(conn, addr, header, &question, dnsmessage.RCodeServerFailure)
		return
	}
	if !found {
		r.reply(conn, addr, header, &question, dnsmessage.RCodeNameError)
		return
	}

	r.replyWithAnswer(conn, addr, header, question, row)
}

func (r *Responder) reply(conn *net.UDPConn, addr netip.AddrPort, header dnsmessage.Header, question *dnsmessage.Question, rcode dnsmessage.RCode) {
	builder := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		ID:            header.ID,
		Response:      true,
		Authoritative: false,
		RCode:         rcode,
	})
	if question != nil {
		_ = builder.StartQuestions()
		_ = builder.Question(*question)
	}
	msg, err := builder.Finish()
	if err != nil {
		return
	}
	_, _ = conn.WriteToUDPAddrPort(msg, addr)
}

func (r *Responder) replyWithAnswer(conn *net.UDPConn, addr netip.AddrPort, header dnsmessage.Header, question dnsmessage.Question, row Row) {
	builder := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		ID:            header.ID,
		Response:      true,
		Authoritative: true,
		RCode:         dnsmessage.RCodeSuccess,
	})
	_ = builder.StartQuestions()
	_ = builder.Question(question)
	_ = builder.StartAnswers()

	resourceHeader := dnsmessage.ResourceHeader{
		Name:  question.Name,
		Type:  question.Type,
		Class: dnsmessage.ClassINET,
		TTL:   uint32(row.TTL),
	}

	switch row.Type {
	case TypeA:
		var addr4 [4]byte
		ip := net.ParseIP(row.Value).To4()
		copy(addr4[:], ip)
		_ = builder.AResource(resourceHeader, dnsmessage.AResource{A: addr4})
	case TypeAAAA:
		var addr16 [16]byte
		ip := net.ParseIP(row.Value).To16()
		copy(addr16[:], ip)
		_ = builder.AAAAResource(resourceHeader, dnsmessage.AAAAResource{AAAA: addr16})
	case TypeCNAME:
		name, _ := dnsmessage.NewName(row.Value)
		_ = builder.CNAMEResource(resourceHeader, dnsmessage.CNAMEResource{CNAME: name})
	case TypeNS:
		name, _ := dnsmessage.NewName(row.Value)
		_ = builder.NSResource(resourceHeader, dnsmessage.NSResource{NS: name})
	case TypePTR:
		name, _ := dnsmessage.NewName(row.Value)
		_ = builder.PTRResource(resourceHeader, dnsmessage.PTRResource{PTR: name})
	case TypeTXT:
		_ = builder.TXTResource(resourceHeader, dnsmessage.TXTResource{TXT: []string{row.Value}})
	case TypeMX:
		name, _ := dnsmessage.NewName(row.Value)
		priority := uint16(0)
		if row.Priority != nil {
			priority = uint16(*row.Priority)
		}
		_ = builder.MXResource(resourceHeader, dnsmessage.MXResource{Pref: priority, MX: name})
	case TypeSRV:
		name, _ := dnsmessage.NewName(row.Value)
		var priority, weight, port uint16
		if row.Priority != nil {
			priority = uint16(*row.Priority)
		}
		if row.Weight != nil {
			weight = uint16(*row.Weight)
		}
		if row.Port != nil {
			port = uint16(*row.Port)
		}
		_ = builder.SRVResource(resourceHeader, dnsmessage.SRVResource{Priority: priority, Weight: weight, Port: port, Target: name})
	default:
		r.reply(conn, addr, header, &question, dnsmessage.RCodeNotImplemented)
		return
	}

	msg, err := builder.Finish()
	if err != nil {
		return
	}
	_, _ = conn.WriteToUDPAddrPort(msg, addr)
}

func toRecordType(t dnsmessage.Type) (Type, bool) {
	switch t {
	case dnsmessage.TypeA:
		return TypeA, true
	case dnsmessage.TypeAAAA:
		return TypeAAAA, true
	case dnsmessage.TypeCNAME:
		return TypeCNAME, true
	case dnsmessage.TypeMX:
		return TypeMX, true
	case dnsmessage.TypeTXT:
		return TypeTXT, true
	case dnsmessage.TypeNS:
		return TypeNS, true
	case dnsmessage.TypeSRV:
		return TypeSRV, true
	case dnsmessage.TypePTR:
		return TypePTR, true
	default:
		return "", false
	}
}
