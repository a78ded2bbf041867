package server

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/apache/arrow/go/v14/arrow/flight"
	flightgen "github.com/apache/arrow/go/v14/arrow/flight/gen/flight"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/google/uuid"
	"github.com/meds-inspect/meds-inspect/aggregate"
	"github.com/meds-inspect/meds-inspect/cache"
	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/querier"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

// FlightServer streams cached views as Arrow record batches. A ticket is
// "<view>@<dataset root>"; the root may be omitted when DataDir is set.
type FlightServer struct {
	flightgen.UnimplementedFlightServiceServer
	Store   *cache.Store
	DataDir string
	mem     memory.Allocator
	rpc     *grpc.Server
}

// NewFlightServer creates a new Flight server instance
func NewFlightServer(store *cache.Store, dataDir string) *FlightServer {
	s := &FlightServer{
		Store:   store,
		DataDir: dataDir,
		mem:     memory.DefaultAllocator,
		rpc:     grpc.NewServer(),
	}
	flightgen.RegisterFlightServiceServer(s.rpc, s)
	reflection.Register(s.rpc)
	return s
}

// Ticket builds the ticket of a view of root
func Ticket(view aggregate.View, root string) *flight.Ticket {
	return &flight.Ticket{Ticket: []byte(string(view) + "@" + root)}
}

func (s *FlightServer) parseTicket(ticket []byte) (aggregate.View, string, error) {
	name, root, _ := strings.Cut(string(ticket), "@")
	view, err := aggregate.ParseView(name)
	if err != nil {
		return "", "", err
	}
	if root == "" {
		root = s.DataDir
	}
	return view, root, nil
}

// ListActions implements the FlightService interface
func (s *FlightServer) ListActions(request *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	// No actions are supported
	return nil
}

// ListFlights lists one flight per view of DataDir
func (s *FlightServer) ListFlights(criteria *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	if s.DataDir == "" {
		return nil
	}
	for _, v := range aggregate.Views {
		err := stream.Send(&flight.FlightInfo{
			FlightDescriptor: &flight.FlightDescriptor{
				Type: flight.DescriptorPATH,
				Path: []string{string(v), s.DataDir},
			},
			Endpoint:     []*flight.FlightEndpoint{{Ticket: Ticket(v, s.DataDir)}},
			TotalRecords: -1,
			TotalBytes:   -1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Handshake implements the FlightService interface
func (s *FlightServer) Handshake(stream flight.FlightService_HandshakeServer) error {
	// Echo back any handshake request
	for {
		req, err := stream.Recv()
		if err != nil {
			return err
		}
		if err := stream.Send(&flight.HandshakeResponse{Payload: req.Payload}); err != nil {
			return err
		}
	}
}

// DoGet streams the view named by the ticket
func (s *FlightServer) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := core.WithDefaultLogger(stream.Context(), uuid.New().String())
	view, root, err := s.parseTicket(ticket.Ticket)
	if err != nil {
		return err
	}
	core.Infof(ctx, "DoGet %s of %s", view, root)

	table, err := s.table(ctx, view, root)
	if err != nil {
		core.Errorf(ctx, "DoGet %s of %s: %v", view, root, err)
		return err
	}
	record, err := querier.ToArrow(table, s.mem)
	if err != nil {
		return fmt.Errorf("failed to convert to arrow: %w", err)
	}
	defer record.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(record.Schema()))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	core.Debugf(ctx, "Wrote %d rows of %s", record.NumRows(), view)
	return writer.Close()
}

func (s *FlightServer) table(ctx context.Context, view aggregate.View, root string) (*querier.Table, error) {
	bundle, err := s.Store.LoadOrCompute(ctx, root)
	if err != nil {
		return nil, err
	}
	if view.Lazy() {
		return bundle.Numerical.Collect(ctx)
	}
	return bundle.Table(view)
}

// Serve serves lis until Stop is called
func (s *FlightServer) Serve(lis net.Listener) error {
	return s.rpc.Serve(lis)
}

// Stop waits for running streams and stops serving
func (s *FlightServer) Stop() {
	s.rpc.GracefulStop()
}

// StartFlightServer starts the Flight server on port
func StartFlightServer(port int, s *FlightServer) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}
