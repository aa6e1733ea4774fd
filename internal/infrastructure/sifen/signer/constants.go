package signer

// Algoritmos y namespaces de la firma enveloped exigida por SIFEN.
// SignedInfo y el DE se canonicalizan con C14N exclusivo; el resumen y la
// firma usan SHA-256 (igual que la librería Java oficial de referencia).
const (
	NamespaceDS = "http://www.w3.org/2000/09/xmldsig#"

	AlgC14NExc         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)
