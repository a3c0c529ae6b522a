// Constantes de assinatura XMLDSig do layout NFe 4.00. O MOC fixa SHA-1 com
// RSA e canonicalização C14N 1.0; algoritmos mais novos são rejeitados pelo
// validador da SEFAZ.

package signer

const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)
