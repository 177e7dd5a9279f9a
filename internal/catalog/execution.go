package catalog

import (
	"encoding/json"
	"fmt"
)

// Method names how a downstream caller invokes an invocable.
type Method string

const (
	MethodModuleCall      Method = "module_call"
	MethodReflectionCall  Method = "reflection_call"
	MethodCOMDispatch     Method = "com_dispatch"
	MethodProcessInvoke   Method = "process_invoke"
	MethodRPCCall         Method = "rpc_call"
	MethodHTTPRequest     Method = "http_request"
	MethodJSONRPCCall     Method = "jsonrpc_call"
	MethodSOAPCall        Method = "soap_call"
	MethodCORBACall       Method = "corba_call"
	MethodJNDILookup      Method = "jndi_lookup"
	MethodSymbolReference Method = "symbol_reference"
	MethodSQLExec         Method = "sql_exec"
	// MethodUnknown appears only in the document schema; no Execution carries it.
	MethodUnknown Method = "unknown"
)

// AllMethods lists every method name accepted by the document schema.
func AllMethods() []Method {
	return []Method{
		MethodModuleCall, MethodReflectionCall, MethodCOMDispatch, MethodProcessInvoke,
		MethodRPCCall, MethodHTTPRequest, MethodJSONRPCCall, MethodSOAPCall,
		MethodCORBACall, MethodJNDILookup, MethodSymbolReference, MethodSQLExec, MethodUnknown,
	}
}

// Execution is the sealed set of invocation metadata variants. Each variant
// carries the companion fields its method requires.
type Execution interface {
	Method() Method
	isExecution()
}

// ModuleCall invokes an export of a native module.
type ModuleCall struct {
	ModulePath        string `json:"module_path"`
	Function          string `json:"function"`
	Ordinal           uint32 `json:"ordinal,omitempty"`
	RVA               uint32 `json:"rva,omitempty"`
	CallingConvention string `json:"calling_convention,omitempty"`
	Forwarder         string `json:"forwarder,omitempty"`
	HeaderFile        string `json:"header_file,omitempty"`
}

// ReflectionCall invokes a managed method through the runtime's reflection API.
type ReflectionCall struct {
	AssemblyPath string `json:"assembly_path"`
	TypeName     string `json:"type_name"`
	MethodName   string `json:"method_name"`
	IsStatic     bool   `json:"is_static"`
}

// COMDispatch invokes a member of a COM interface.
type COMDispatch struct {
	ServerPath  string `json:"server_path"`
	Interface   string `json:"interface"`
	InterfaceID string `json:"interface_id,omitempty"`
	CLSID       string `json:"clsid,omitempty"`
	ProgID      string `json:"prog_id,omitempty"`
	DispID      *int32 `json:"dispid,omitempty"`
	InvokeKind  string `json:"invoke_kind"`
	Member      string `json:"member"`
}

// ProcessInvoke starts a process: an executable, or an interpreter running a script function.
type ProcessInvoke struct {
	Executable  string `json:"executable"`
	Interpreter string `json:"interpreter,omitempty"`
	ScriptPath  string `json:"script_path,omitempty"`
	Function    string `json:"function,omitempty"`
	Subcommand  string `json:"subcommand,omitempty"`
	ArgStyle    string `json:"arg_style"`
}

// RPCCall invokes an operation of an MS-RPC interface.
type RPCCall struct {
	IDLPath       string `json:"idl_path"`
	Interface     string `json:"interface"`
	InterfaceUUID string `json:"interface_uuid"`
	Version       string `json:"version,omitempty"`
	Operation     string `json:"operation"`
	Opnum         int    `json:"opnum"`
}

// HTTPRequest invokes an HTTP operation.
type HTTPRequest struct {
	BaseURL     string `json:"base_url,omitempty"`
	Path        string `json:"path"`
	HTTPMethod  string `json:"http_method"`
	OperationID string `json:"operation_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// JSONRPCCall invokes a JSON-RPC method.
type JSONRPCCall struct {
	Endpoint       string `json:"endpoint,omitempty"`
	RPCMethod      string `json:"rpc_method"`
	Version        string `json:"jsonrpc_version"`
	ParamStructure string `json:"param_structure,omitempty"`
}

// SOAPCall invokes a SOAP operation.
type SOAPCall struct {
	Endpoint    string `json:"endpoint,omitempty"`
	SOAPAction  string `json:"soap_action,omitempty"`
	Operation   string `json:"operation"`
	Namespace   string `json:"namespace,omitempty"`
	Binding     string `json:"binding,omitempty"`
	Style       string `json:"style,omitempty"`
	SOAPVersion string `json:"soap_version"`
}

// CORBACall invokes an operation on a CORBA object reference.
type CORBACall struct {
	IDLPath      string `json:"idl_path"`
	Module       string `json:"module,omitempty"`
	Interface    string `json:"interface"`
	Operation    string `json:"operation"`
	RepositoryID string `json:"repository_id"`
	Oneway       bool   `json:"oneway,omitempty"`
}

// JNDILookup resolves a named resource from a JNDI context.
type JNDILookup struct {
	JNDIName       string `json:"jndi_name"`
	ResourceType   string `json:"resource_type,omitempty"`
	ProviderURL    string `json:"provider_url,omitempty"`
	ContextFactory string `json:"context_factory,omitempty"`
	Descriptor     string `json:"descriptor"`
}

// SymbolReference points at a function recorded in a debug symbol file.
type SymbolReference struct {
	SymbolFile  string `json:"symbol_file"`
	Symbol      string `json:"symbol"`
	MangledName string `json:"mangled_name,omitempty"`
	Address     uint64 `json:"address,omitempty"`
	Module      string `json:"module,omitempty"`
}

// SQLExec runs a stored procedure or function.
type SQLExec struct {
	SourcePath string `json:"source_path"`
	Object     string `json:"object"`
	Schema     string `json:"schema,omitempty"`
	ObjectType string `json:"object_type"`
	Dialect    string `json:"dialect"`
	Statement  string `json:"statement"`
}

func (ModuleCall) Method() Method      { return MethodModuleCall }
func (ReflectionCall) Method() Method  { return MethodReflectionCall }
func (COMDispatch) Method() Method     { return MethodCOMDispatch }
func (ProcessInvoke) Method() Method   { return MethodProcessInvoke }
func (RPCCall) Method() Method         { return MethodRPCCall }
func (HTTPRequest) Method() Method     { return MethodHTTPRequest }
func (JSONRPCCall) Method() Method     { return MethodJSONRPCCall }
func (SOAPCall) Method() Method        { return MethodSOAPCall }
func (CORBACall) Method() Method       { return MethodCORBACall }
func (JNDILookup) Method() Method      { return MethodJNDILookup }
func (SymbolReference) Method() Method { return MethodSymbolReference }
func (SQLExec) Method() Method         { return MethodSQLExec }

func (ModuleCall) isExecution()      {}
func (ReflectionCall) isExecution()  {}
func (COMDispatch) isExecution()     {}
func (ProcessInvoke) isExecution()   {}
func (RPCCall) isExecution()         {}
func (HTTPRequest) isExecution()     {}
func (JSONRPCCall) isExecution()     {}
func (SOAPCall) isExecution()        {}
func (CORBACall) isExecution()       {}
func (JNDILookup) isExecution()      {}
func (SymbolReference) isExecution() {}
func (SQLExec) isExecution()         {}

// MarshalExecution encodes e as a JSON object whose first key is "method".
func MarshalExecution(e Execution) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("nil execution")
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s execution: %w", e.Method(), err)
	}
	method, _ := json.Marshal(string(e.Method()))

	out := make([]byte, 0, len(body)+len(method)+12)
	out = append(out, `{"method":`...)
	out = append(out, method...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
