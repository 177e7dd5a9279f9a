package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// Test Plan for service descriptor adapters:
// - OpenAPI 3: path-level and operation parameters merge; request body properties expand;
//   a $ref response resolves to its target; 204 establishes an empty return
// - OpenAPI operation without description, parameters or responses stays low
// - A $ref cycle is reported and leaves the operation without a return, not an error
// - Swagger 2.0: host, basePath and schemes form the base URL; body and typed query params
// - OpenRPC methods array with a $ref content descriptor; bare methods map
// - WSDL: document/literal wrapped expansion, one record per bound port, SOAP 1.2 detection
// - An empty params list or a part-less message establishes nothing and stays low
// - JNDI: web.xml references, Tomcat context resources, jndi.properties destinations
// - A bare JNDI name with no description or type stays low

const petStore = `openapi: 3.0.3
info:
  title: Pets
  version: "1"
servers:
  - url: https://api.example.com/v1
paths:
  /pets/{petId}:
    parameters:
      - name: petId
        in: path
        description: pet identifier
        schema:
          type: string
    get:
      operationId: getPet
      summary: Fetches a pet.
      responses:
        "200":
          description: the pet
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Pet"
    put:
      operationId: updatePet
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: "#/components/schemas/Pet"
      responses:
        "204":
          description: updated
  /ping:
    get:
      operationId: ping
      responses: {}
  /loop:
    get:
      operationId: loop
      description: Follows a cyclic schema.
      responses:
        "200":
          description: never resolves
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/A"
components:
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        name:
          type: string
        age:
          type: integer
          format: int32
    A:
      $ref: "#/components/schemas/B"
    B:
      $ref: "#/components/schemas/A"
`

func TestOpenAPIAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "pets.yaml", petStore)
	invs := extractOne(t, NewOpenAPIAdapter(Deps{}), path)
	assert.Equal(t, []string{"getPet", "updatePet", "ping", "loop"}, names(invs))
	got := indexByName(invs)

	get := got["getPet"]
	assert.Equal(t, confidence.Guaranteed, get.Confidence.Tier)
	assert.Equal(t, "Fetches a pet.", get.Documentation)
	assert.Equal(t, 15, get.Origin.Line)
	require.Len(t, get.Parameters, 1)
	assert.Equal(t, catalog.Parameter{Name: "petId", Type: textscan.TypeString, NativeType: "string", Required: true, Description: "pet identifier"}, get.Parameters[0])
	assert.Equal(t, &catalog.ReturnType{Type: textscan.TypeObject, Native: "Pet"}, get.Return)
	assert.Equal(t, catalog.HTTPRequest{
		BaseURL:     "https://api.example.com/v1",
		Path:        "/pets/{petId}",
		HTTPMethod:  "GET",
		OperationID: "getPet",
	}, get.Execution)

	update := got["updatePet"]
	assert.Equal(t, []string{"petId", "age", "name"}, paramNames(update.Parameters))
	assert.Equal(t, "integer(int32)", update.Parameters[1].NativeType)
	assert.False(t, update.Parameters[1].Required)
	assert.True(t, update.Parameters[2].Required)
	assert.Nil(t, update.Return)
	assert.Equal(t, confidence.High, update.Confidence.Tier)
	assert.Equal(t, "application/json", update.Execution.(catalog.HTTPRequest).ContentType)

	ping := got["ping"]
	assert.Equal(t, confidence.Low, ping.Confidence.Tier)
	assert.Empty(t, ping.Parameters)

	loop := got["loop"]
	assert.Nil(t, loop.Return)
	assert.Equal(t, confidence.Medium, loop.Confidence.Tier)
}

const swaggerOrders = `{
  "swagger": "2.0",
  "host": "legacy.example.com",
  "basePath": "/api",
  "schemes": ["http"],
  "paths": {
    "/orders": {
      "post": {
        "operationId": "createOrder",
        "description": "Creates an order.",
        "consumes": ["application/xml"],
        "parameters": [
          {"name": "order", "in": "body", "required": true,
           "schema": {"type": "object", "properties": {"sku": {"type": "string"}}}},
          {"name": "dryRun", "in": "query", "type": "boolean"}
        ],
        "responses": {
          "201": {"description": "created", "schema": {"type": "object"}}
        }
      }
    }
  }
}`

func TestOpenAPIAdapter_Swagger2(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "orders.json", swaggerOrders)
	invs := extractOne(t, NewOpenAPIAdapter(Deps{}), path)
	require.Len(t, invs, 1)

	create := invs[0]
	assert.Equal(t, "createOrder", create.Name)
	assert.Equal(t, confidence.Guaranteed, create.Confidence.Tier)
	assert.Equal(t, []string{"sku", "dryRun"}, paramNames(create.Parameters))
	assert.Equal(t, textscan.TypeBoolean, create.Parameters[1].Type)
	assert.Equal(t, textscan.TypeObject, create.Return.Type)

	exec := create.Execution.(catalog.HTTPRequest)
	assert.Equal(t, "http://legacy.example.com/api", exec.BaseURL)
	assert.Equal(t, "POST", exec.HTTPMethod)
	assert.Equal(t, "application/xml", exec.ContentType)
}

const openRPCDoc = `{
  "openrpc": "1.2.6",
  "servers": [{"url": "https://rpc.example.com"}],
  "methods": [
    {
      "name": "eth_getBalance",
      "summary": "Returns an account balance.",
      "paramStructure": "by-position",
      "params": [
        {"name": "address", "required": true, "schema": {"type": "string"}},
        {"$ref": "#/components/contentDescriptors/Block"}
      ],
      "result": {"name": "balance", "schema": {"type": "integer"}}
    },
    {"name": "net_ping", "params": []}
  ],
  "components": {
    "contentDescriptors": {
      "Block": {"name": "block", "schema": {"type": "string"}}
    }
  }
}`

func TestJSONRPCAdapter_OpenRPC(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "openrpc.json", openRPCDoc)
	invs := extractOne(t, NewJSONRPCAdapter(Deps{}), path)
	assert.Equal(t, []string{"eth_getBalance", "net_ping"}, names(invs))

	bal := invs[0]
	assert.Equal(t, confidence.Guaranteed, bal.Confidence.Tier)
	assert.Equal(t, []string{"address", "block"}, paramNames(bal.Parameters))
	assert.True(t, bal.Parameters[0].Required)
	assert.False(t, bal.Parameters[1].Required)
	assert.Equal(t, textscan.TypeInteger, bal.Return.Type)
	assert.Equal(t, catalog.JSONRPCCall{
		Endpoint:       "https://rpc.example.com",
		RPCMethod:      "eth_getBalance",
		Version:        "2.0",
		ParamStructure: "by-position",
	}, bal.Execution)

	ping := invs[1]
	assert.Equal(t, confidence.Low, ping.Confidence.Tier)
	assert.Empty(t, ping.Confidence.Rationale)
	assert.Empty(t, ping.Parameters)
	assert.Nil(t, ping.Return)
	assert.Equal(t, "either", ping.Execution.(catalog.JSONRPCCall).ParamStructure)
}

func TestJSONRPCAdapter_MethodsMap(t *testing.T) {
	t.Parallel()

	src := `jsonrpc: "1.0"
methods:
  subtract:
    description: Subtracts two numbers.
  add:
    paramStructure: by-name
`
	path := writeArtifact(t, t.TempDir(), "rpc.yaml", src)
	invs := extractOne(t, NewJSONRPCAdapter(Deps{}), path)
	assert.Equal(t, []string{"add", "subtract"}, names(invs))
	assert.Equal(t, confidence.Low, invs[0].Confidence.Tier)
	assert.Equal(t, confidence.Medium, invs[1].Confidence.Tier)
	assert.Equal(t, "1.0", invs[1].Execution.(catalog.JSONRPCCall).Version)
}

const quotesWSDL = `<?xml version="1.0"?>
<definitions name="Quotes"
    targetNamespace="http://example.com/quotes"
    xmlns:tns="http://example.com/quotes"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
    xmlns:soap12="http://schemas.xmlsoap.org/wsdl/soap12/"
    xmlns="http://schemas.xmlsoap.org/wsdl/">
  <types>
    <xsd:schema targetNamespace="http://example.com/quotes">
      <xsd:element name="GetQuote">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="symbol" type="xsd:string"/>
            <xsd:element name="days" type="xsd:int" minOccurs="0"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
      <xsd:element name="GetQuoteResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="price" type="xsd:decimal"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
    </xsd:schema>
  </types>
  <message name="GetQuoteIn">
    <part name="parameters" element="tns:GetQuote"/>
  </message>
  <message name="GetQuoteOut">
    <part name="parameters" element="tns:GetQuoteResponse"/>
  </message>
  <message name="PingIn"/>
  <portType name="QuotePort">
    <operation name="GetQuote">
      <documentation>Returns the latest price.</documentation>
      <input message="tns:GetQuoteIn"/>
      <output message="tns:GetQuoteOut"/>
    </operation>
    <operation name="Ping">
      <input message="tns:PingIn"/>
    </operation>
  </portType>
  <binding name="QuoteSoap" type="tns:QuotePort">
    <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
    <operation name="GetQuote">
      <soap:operation soapAction="http://example.com/quotes/GetQuote"/>
    </operation>
  </binding>
  <binding name="QuoteSoap12" type="tns:QuotePort">
    <soap12:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
    <operation name="GetQuote">
      <soap12:operation soapAction="urn:GetQuote12"/>
    </operation>
  </binding>
  <service name="QuoteService">
    <port name="QuoteSoapPort" binding="tns:QuoteSoap">
      <soap:address location="http://example.com/quotes"/>
    </port>
    <port name="QuoteSoap12Port" binding="tns:QuoteSoap12">
      <soap12:address location="http://example.com/quotes12"/>
    </port>
  </service>
</definitions>
`

func TestWSDLAdapter(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "quotes.wsdl", quotesWSDL)
	invs := extractOne(t, NewWSDLAdapter(Deps{}), path)
	require.Len(t, invs, 4)
	assert.Equal(t, []string{"GetQuote", "Ping", "GetQuote", "Ping"}, names(invs))

	quote := invs[0]
	assert.Equal(t, confidence.Guaranteed, quote.Confidence.Tier)
	assert.Equal(t, "Returns the latest price.", quote.Documentation)
	require.Len(t, quote.Parameters, 2)
	assert.Equal(t, catalog.Parameter{Name: "symbol", Type: textscan.TypeString, NativeType: "string", Required: true}, quote.Parameters[0])
	assert.False(t, quote.Parameters[1].Required)
	assert.Equal(t, textscan.TypeInteger, quote.Parameters[1].Type)
	assert.Equal(t, &catalog.ReturnType{Type: textscan.TypeNumber, Native: "decimal"}, quote.Return)
	assert.Equal(t, catalog.SOAPCall{
		Endpoint:    "http://example.com/quotes",
		SOAPAction:  "http://example.com/quotes/GetQuote",
		Operation:   "GetQuote",
		Namespace:   "http://example.com/quotes",
		Binding:     "QuoteSoap",
		Style:       "document",
		SOAPVersion: "1.1",
	}, quote.Execution)

	ping := invs[1]
	assert.Empty(t, ping.Parameters)
	assert.Nil(t, ping.Return)
	assert.Equal(t, confidence.Low, ping.Confidence.Tier)
	assert.Empty(t, ping.Confidence.Rationale)

	quote12 := invs[2].Execution.(catalog.SOAPCall)
	assert.Equal(t, "1.2", quote12.SOAPVersion)
	assert.Equal(t, "urn:GetQuote12", quote12.SOAPAction)
	assert.Equal(t, "http://example.com/quotes12", quote12.Endpoint)
}

func TestWSDLAdapter_NotWSDL(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "other.wsdl", `<root><child/></root>`)
	invs := extractOne(t, NewWSDLAdapter(Deps{}), path)
	assert.Empty(t, invs)
}

const webXML = `<?xml version="1.0" encoding="UTF-8"?>
<web-app xmlns="https://jakarta.ee/xml/ns/jakartaee" version="5.0">
  <resource-ref>
    <description>Orders database</description>
    <res-ref-name>jdbc/OrdersDB</res-ref-name>
    <res-type>javax.sql.DataSource</res-type>
    <res-auth>Container</res-auth>
  </resource-ref>
  <ejb-local-ref>
    <ejb-ref-name>ejb/Cart</ejb-ref-name>
    <local>com.shop.Cart</local>
    <lookup-name>java:global/shop/Cart</lookup-name>
  </ejb-local-ref>
  <env-entry>
    <env-entry-name>maxItems</env-entry-name>
  </env-entry>
</web-app>
`

func TestJNDIAdapter_WebXML(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), "web.xml", webXML)
	invs := extractOne(t, NewJNDIAdapter(Deps{}), path)
	assert.Equal(t, []string{"jdbc/OrdersDB", "ejb/Cart", "maxItems"}, names(invs))

	db := invs[0]
	assert.Equal(t, confidence.High, db.Confidence.Tier)
	assert.Equal(t, []string{"documentation: description", "return type: resource type"}, db.Confidence.Rationale)
	assert.Equal(t, "Orders database", db.Documentation)
	assert.Equal(t, 3, db.Origin.Line)
	assert.Empty(t, db.Parameters)
	assert.Equal(t, catalog.JNDILookup{
		JNDIName:     "java:comp/env/jdbc/OrdersDB",
		ResourceType: "javax.sql.DataSource",
		Descriptor:   path,
	}, db.Execution)

	cart := invs[1]
	assert.Equal(t, "java:global/shop/Cart", cart.Execution.(catalog.JNDILookup).JNDIName)
	assert.Equal(t, "com.shop.Cart", cart.Return.Native)
	assert.Equal(t, confidence.Medium, cart.Confidence.Tier)

	bare := invs[2]
	assert.Equal(t, confidence.Low, bare.Confidence.Tier)
	assert.Empty(t, bare.Confidence.Rationale)
}

func TestJNDIAdapter_TomcatContext(t *testing.T) {
	t.Parallel()

	src := `<Context>
  <Resource name="jdbc/Shop" auth="Container" type="javax.sql.DataSource"
            factory="org.apache.tomcat.jdbc.pool.DataSourceFactory" description="Shop pool"/>
  <ResourceLink name="mail/Session" global="mail/GlobalSession" type="jakarta.mail.Session"/>
  <Environment name="java:app/flag" type="java.lang.Boolean" value="true"/>
</Context>
`
	path := writeArtifact(t, t.TempDir(), "context.xml", src)
	invs := extractOne(t, NewJNDIAdapter(Deps{}), path)
	assert.Equal(t, []string{"jdbc/Shop", "mail/Session", "java:app/flag"}, names(invs))

	shop := invs[0].Execution.(catalog.JNDILookup)
	assert.Equal(t, "java:comp/env/jdbc/Shop", shop.JNDIName)
	assert.Equal(t, "org.apache.tomcat.jdbc.pool.DataSourceFactory", shop.ContextFactory)
	assert.Equal(t, "Shop pool", invs[0].Documentation)

	assert.Equal(t, "Links global resource mail/GlobalSession.", invs[1].Documentation)
	assert.Equal(t, "java:app/flag", invs[2].Execution.(catalog.JNDILookup).JNDIName)
}

func TestJNDIAdapter_Properties(t *testing.T) {
	t.Parallel()

	src := `java.naming.factory.initial = org.apache.activemq.jndi.ActiveMQInitialContextFactory
java.naming.provider.url = tcp://localhost:61616
connectionFactoryNames = connectionFactory, queueConnectionFactory
queue.jms/Orders = example.Orders
topic.events = example.Events
`
	path := writeArtifact(t, t.TempDir(), "jndi.properties", src)
	invs := extractOne(t, NewJNDIAdapter(Deps{}), path)
	assert.Equal(t, []string{"connectionFactory", "queueConnectionFactory", "jms/Orders", "events"}, names(invs))

	orders := invs[2]
	assert.Equal(t, 4, orders.Origin.Line)
	assert.Equal(t, confidence.Medium, orders.Confidence.Tier)
	assert.Equal(t, catalog.JNDILookup{
		JNDIName:       "jms/Orders",
		ResourceType:   "javax.jms.Queue",
		ProviderURL:    "tcp://localhost:61616",
		ContextFactory: "org.apache.activemq.jndi.ActiveMQInitialContextFactory",
		Descriptor:     path,
	}, orders.Execution)
	assert.Equal(t, "javax.jms.Topic", invs[3].Return.Native)
}
